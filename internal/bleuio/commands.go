package bleuio

import "fmt"

// Firmware versions the gateway knows how to drive.
const (
	Firmware210 = "2.1.0"
	Firmware213 = "2.1.3"
	Firmware221 = "2.2.1"
)

// SupportedFirmware lists the accepted identify responses.
var SupportedFirmware = []string{Firmware210, Firmware213, Firmware221}

// IsSupportedFirmware reports whether version is one of SupportedFirmware.
func IsSupportedFirmware(version string) bool {
	for _, v := range SupportedFirmware {
		if v == version {
			return true
		}
	}
	return false
}

// RetriesDroppedLinks reports whether the firmware silently drops a fresh link
// and expects the host to reconnect.
func RetriesDroppedLinks(version string) bool {
	return version == Firmware221
}

// Connection parameters sent with every connect.
const (
	MinConnInterval    = 30
	MaxConnInterval    = 30
	SlaveLatency       = 0
	SupervisionTimeout = 1000
)

// Commands are written without the trailing carriage return; the port adds it.
const (
	CmdEchoOff       = "ATE0"
	CmdVerboseOff    = "ATV0"
	CmdCentral       = "AT+CENTRAL"
	CmdAutoAcceptOff = "ATA0"
	CmdNotifyFraming = "ATDS0"
	CmdShowRSSI      = "AT+SHOWRSSI=1"
	CmdCancelConnect = "AT+CANCELCONNECT"
	CmdEscape        = "\x03"
	CmdIdentify      = "ATI"
	CmdScan          = "AT+FINDSCANDATA="
	CmdDisconnect    = "AT+GAPDISCONNECT"
)

// BringUpSequence is sent in order after the port opens.
var BringUpSequence = []string{
	CmdEchoOff,
	CmdVerboseOff,
	CmdCentral,
	CmdAutoAcceptOff,
	CmdNotifyFraming,
	CmdShowRSSI,
	CmdCancelConnect,
	CmdEscape,
	CmdIdentify,
}

// ConnectCommand builds AT+GAPCONNECT for a normalized or colon address.
func ConnectCommand(address string, public bool) string {
	addrType := "1"
	if public {
		addrType = "0"
	}
	return fmt.Sprintf("AT+GAPCONNECT=[%s]%s=%d:%d:%d:%d:",
		addrType, ColonAddress(address),
		MinConnInterval, MaxConnInterval, SlaveLatency, SupervisionTimeout)
}

// SubscribeCommand enables notifications on a characteristic handle.
func SubscribeCommand(handle string) string {
	return "AT+SETNOTI=" + handle
}

// WriteWithResponseCommand writes data and waits for DATA WRITTEN.
func WriteWithResponseCommand(handle, data string) string {
	return fmt.Sprintf("AT+GATTCWRITEWRB=%s %s", handle, data)
}

// WriteCommand writes data without response.
func WriteCommand(handle, data string) string {
	return fmt.Sprintf("AT+GATTCWRITEB=%s %s", handle, data)
}
