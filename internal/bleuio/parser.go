package bleuio

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	advRssiRegex  = regexp.MustCompile(`^RSSI: (-?\d+) \[(\w{2}:\w{2}:\w{2}:\w{2}:\w{2}:\w{2})\]\s+Device Data\s+\[(\w+)\]:\s+(\w+)$`)
	hexDataRegex  = regexp.MustCompile(`^Hex: 0x(\w+)$`)
	sizeRegex     = regexp.MustCompile(`Size: \d+`)
	firmwareRegex = regexp.MustCompile(`Firmware Version: (\d+\.\d+\.\d+)`)
)

// advReportKind is the only scan report kind decoded into AdvRssiData.
const advReportKind = "ADV"

// lineMatcher classifies a line, returning nil when it does not apply.
type lineMatcher func(line string) Event

func contains(marker string, ev Event) lineMatcher {
	return func(line string) Event {
		if strings.Contains(line, marker) {
			return ev
		}
		return nil
	}
}

// commandMatchers is evaluated in order and the first match wins. The markers
// are not disjoint, so the order is part of the protocol.
var commandMatchers = []lineMatcher{
	contains("Timeout", Timeout{}),
	contains("handle_evt_gap_connected", Connected{}),
	contains("Reconnecting...", Reconnecting{}),
	contains("handle_evt_gap_disconnected", Disconnected{}),
	contains("handle_evt_gattc_write_completed", WriteCompleted{}),
	contains("handle_evt_gattc_notification", NotificationReceived{}),
	contains("Peripheral updated CI", ConnectionIntervalUpdated{}),
	func(line string) Event {
		if m := hexDataRegex.FindStringSubmatch(line); m != nil {
			return NotificationHexData{Data: strings.ToLower(m[1])}
		}
		return nil
	},
	contains("DATA WRITTEN", DataWritten{}),
	contains("AT+", AtEcho{}),
	func(line string) Event {
		if sizeRegex.MatchString(line) {
			return WrittenSize{}
		}
		return nil
	},
}

// ParseCommandLine classifies a trimmed line received outside of scanning.
// Lines that match nothing become AsciiData.
func ParseCommandLine(line string) Event {
	for _, match := range commandMatchers {
		if ev := match(line); ev != nil {
			return ev
		}
	}
	return AsciiData{Data: line}
}

// ParseScanLine classifies a trimmed line received while scanning.
// It returns nil for lines that are not part of the scan grammar and for
// reports other than plain advertisements.
func ParseScanLine(line string) Event {
	switch {
	case strings.Contains(line, "SCAN COMPLETE"):
		return ScanComplete{}
	case strings.Contains(line, "ERROR"):
		return DeviceError{}
	}

	m := advRssiRegex.FindStringSubmatch(line)
	if m == nil || m[3] != advReportKind {
		return nil
	}
	rssi, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return AdvRssiData{
		RSSI:      rssi,
		Address:   NormalizeAddress(m[2]),
		AdvFields: DecodeAdvData(m[4]),
	}
}

// ParseFirmwareVersion extracts the x.y.z version from the identify response.
func ParseFirmwareVersion(line string) (string, bool) {
	m := firmwareRegex.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}
