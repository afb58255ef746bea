// Package serialport finds the BleuIO dongle among the host's serial ports,
// opens it and turns its output into lines.
package serialport

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var (
	ErrPortNotFound = errors.New("BLE radio not found")
	ErrClosed       = errors.New("serial port is closed")
)

// ListPorts enumerates the host's serial ports. Tests replace it.
var ListPorts = enumerator.GetDetailedPortsList

// Options selects and configures the port. Path skips enumeration.
type Options struct {
	Path      string
	VendorID  string `default:"2dcf"`
	ProductID string `default:"6002"`
	BaudRate  int    `default:"57600"`
}

// DefaultOptions returns the BleuIO identifiers and line settings.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// PortInfo describes one enumerated port.
type PortInfo struct {
	Name    string `json:"name"`
	USB     bool   `json:"usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
	Radio   bool   `json:"radio"`
}

// List returns every port, marking those whose USB identifiers match opts.
func List(opts *Options) ([]PortInfo, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	ports, err := ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			Name:    p.Name,
			USB:     p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Serial:  p.SerialNumber,
			Product: p.Product,
			Radio: p.IsUSB &&
				strings.EqualFold(p.VID, opts.VendorID) &&
				strings.EqualFold(p.PID, opts.ProductID),
		})
	}
	return infos, nil
}

// Discover returns the path of the first matching port, or opts.Path when set.
func Discover(opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Path != "" {
		return opts.Path, nil
	}

	infos, err := List(opts)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.Radio {
			return info.Name, nil
		}
	}
	return "", fmt.Errorf("%w (vid %s, pid %s)", ErrPortNotFound, opts.VendorID, opts.ProductID)
}

// Port is an open radio connection. Write is safe for concurrent use.
type Port struct {
	name   string
	port   serial.Port
	logger *logrus.Logger

	mu     sync.Mutex
	closed atomic.Bool
}

// Open discovers and opens the radio at 8N1 without flow control.
func Open(opts *Options, logger *logrus.Logger) (*Port, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}

	name, err := Discover(opts)
	if err != nil {
		return nil, err
	}

	sp, err := serial.Open(name, &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	logger.WithFields(logrus.Fields{"port": name, "baud": opts.BaudRate}).Info("Opened BLE radio")
	return &Port{name: name, port: sp, logger: logger}, nil
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

func (p *Port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Write(b)
}

func (p *Port) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Close releases the port. Reads blocked on it return an error that the line
// reader does not report.
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.port.Close()
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	return p.closed.Load()
}

// IsDisconnect reports whether err means the device went away rather than a
// transient I/O failure.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}

	code, ok := portErrorCode(err)
	if ok {
		switch code {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"device not configured",
		"input/output error",
		"no such device",
		"device not found",
		"broken pipe",
		"file already closed",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsPermissionDenied reports whether the port exists but may not be opened
// by the current user.
func IsPermissionDenied(err error) bool {
	code, ok := portErrorCode(err)
	if ok {
		return code == serial.PermissionDenied
	}
	return errors.Is(err, os.ErrPermission)
}

func portErrorCode(err error) (serial.PortErrorCode, bool) {
	var ptr *serial.PortError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code(), true
	}
	var val serial.PortError
	if errors.As(err, &val) {
		return val.Code(), true
	}
	return 0, false
}
