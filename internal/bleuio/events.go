package bleuio

// Event is a single classified line received from the radio.
//
// Every line produces exactly one Event under the command grammar; the scan
// grammar returns nil for lines it does not recognize.
type Event interface {
	// Kind returns a short stable name, used for logging.
	Kind() string
}

// ScanComplete marks the end of a scan, either natural or after an escape.
type ScanComplete struct{}

// DeviceError is the radio's generic ERROR result while scanning.
type DeviceError struct{}

// AdvRssiData is an advertisement report observed while scanning.
type AdvRssiData struct {
	RSSI      int       `json:"rssi"`
	Address   string    `json:"address"`
	AdvFields AdvFields `json:"advFields"`
}

// Timeout is emitted by the radio, or synthesized when a local timer fires.
type Timeout struct{}

// Connected means the GAP link is up.
type Connected struct{}

// Reconnecting is printed by firmware that retries a dropped link on its own.
type Reconnecting struct{}

// Disconnected means the GAP link is down.
type Disconnected struct{}

// ConnectionIntervalUpdated means the peripheral accepted connection parameters.
type ConnectionIntervalUpdated struct{}

// DataWritten confirms a write-with-response.
type DataWritten struct{}

// WriteCompleted is the GATT client write completion event, also raised
// after a notification subscription is written.
type WriteCompleted struct{}

// AtEcho is a command echoed back by the radio.
type AtEcho struct{}

// WrittenSize reports the number of bytes written.
type WrittenSize struct{}

// NotificationReceived announces that notification data follows.
type NotificationReceived struct{}

// NotificationHexData carries a notification payload as lowercase hex.
type NotificationHexData struct {
	Data string `json:"data"`
}

// AsciiData is any other command-mode line, kept verbatim.
type AsciiData struct {
	Data string `json:"data"`
}

func (ScanComplete) Kind() string              { return "scan_complete" }
func (DeviceError) Kind() string               { return "device_error" }
func (AdvRssiData) Kind() string               { return "adv_rssi_data" }
func (Timeout) Kind() string                   { return "timeout" }
func (Connected) Kind() string                 { return "connected" }
func (Reconnecting) Kind() string              { return "reconnecting" }
func (Disconnected) Kind() string              { return "disconnected" }
func (ConnectionIntervalUpdated) Kind() string { return "ci_updated" }
func (DataWritten) Kind() string               { return "data_written" }
func (WriteCompleted) Kind() string            { return "write_completed" }
func (AtEcho) Kind() string                    { return "at_echo" }
func (WrittenSize) Kind() string               { return "written_size" }
func (NotificationReceived) Kind() string      { return "notification_received" }
func (NotificationHexData) Kind() string       { return "notification_hex_data" }
func (AsciiData) Kind() string                 { return "ascii_data" }
