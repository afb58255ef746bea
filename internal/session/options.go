package session

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Options tunes protocol timing. The defaults match what the radio and the
// peripherals it talks to need; tests shrink them.
type Options struct {
	// BringUpDelay separates the configuration commands sent after opening the port.
	BringUpDelay time.Duration `default:"100ms"`
	// SettleDelay precedes subscribe, write-with-response and reconnect commands.
	SettleDelay time.Duration `default:"50ms"`
	// DisconnectDelay precedes the disconnect after a write-only request succeeds.
	DisconnectDelay time.Duration `default:"350ms"`
	// DisconnectTimeout bounds the wait for the link to drop once disconnect is sent.
	DisconnectTimeout time.Duration `default:"3s"`
	// ConnectTimeout applies when a request does not set connectTimeoutMs.
	ConnectTimeout time.Duration `default:"1s"`
	// NotificationTimeout applies when a request does not set notificationTimeoutMs.
	NotificationTimeout time.Duration `default:"1s"`
	// OperationTimeout bounds a request from admission until it settles. The
	// connect and notification windows of the request are added on top.
	OperationTimeout time.Duration `default:"10s"`
	// FirmwareTimeout bounds the wait for the identify response.
	FirmwareTimeout time.Duration `default:"5s"`
	// TransferUnit applies when a request does not set transferUnit.
	TransferUnit int `default:"20"`
	// MailboxSize is the capacity of the session's message queue.
	MailboxSize int `default:"256"`
}

// DefaultOptions returns the production timing.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}
