package request

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
)

// DefaultTransferUnit is the number of payload bytes per chunked write.
const DefaultTransferUnit = 20

// Spec is one "perform a BLE operation" request as published by a client.
type Spec struct {
	Address               string `json:"address"`
	WriteCharHandle       string `json:"writeCharHandle"`
	WriteData             string `json:"writeData"`
	NotifyCharHandle      string `json:"notifyCharHandle,omitempty"`
	LastNotification      string `json:"lastNotification,omitempty"`
	MaxNotifications      int    `json:"maxNotifications,omitempty"`
	TransferUnit          int    `json:"transferUnit,omitempty"`
	ConnectTimeoutMs      int64  `json:"connectTimeoutMs,omitempty"`
	NotificationTimeoutMs int64  `json:"notificationTimeoutMs,omitempty"`
	Timestamp             int64  `json:"timestamp,omitempty"`
	ExpiryIntervalMs      int64  `json:"expiryIntervalMs,omitempty"`
	IsPublicAddress       bool   `json:"isPublicAddress,omitempty"`
}

// legacySpec carries field names used by earlier clients.
type legacySpec struct {
	MTU                 int   `json:"mtu"`
	WaitConnectMs       int64 `json:"waitConnectMs"`
	WaitNotificationsMs int64 `json:"waitNotificationsMs"`
}

// Parse decodes a request payload. Legacy field names are honored when the
// current name is absent.
func Parse(payload []byte) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(payload, &spec); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	var legacy legacySpec
	if err := json.Unmarshal(payload, &legacy); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	if spec.TransferUnit == 0 {
		spec.TransferUnit = legacy.MTU
	}
	if spec.ConnectTimeoutMs == 0 {
		spec.ConnectTimeoutMs = legacy.WaitConnectMs
	}
	if spec.NotificationTimeoutMs == 0 {
		spec.NotificationTimeoutMs = legacy.WaitNotificationsMs
	}
	return &spec, nil
}

// Validate checks the request shape before it reaches the radio.
func (s *Spec) Validate() error {
	if s == nil {
		return ErrBadRequest
	}
	if bleuio.NormalizeAddress(s.Address) == "" {
		return fmt.Errorf("%w: invalid address %q", ErrBadRequest, s.Address)
	}
	if !bleuio.IsValidHandle(s.WriteCharHandle) {
		return fmt.Errorf("%w: invalid write handle %q", ErrBadRequest, s.WriteCharHandle)
	}
	if s.NotifyCharHandle != "" && !bleuio.IsValidHandle(s.NotifyCharHandle) {
		return fmt.Errorf("%w: invalid notify handle %q", ErrBadRequest, s.NotifyCharHandle)
	}
	if !bleuio.IsValidHexData(s.WriteData) {
		return fmt.Errorf("%w: invalid write data", ErrBadRequest)
	}
	if s.TransferUnit < 0 || s.MaxNotifications < 0 || s.ConnectTimeoutMs < 0 || s.NotificationTimeoutMs < 0 {
		return fmt.Errorf("%w: negative limit", ErrBadRequest)
	}
	return nil
}

// IsExpired reports whether timestamp+expiryIntervalMs lies before now.
// Requests without both fields never expire.
func (s *Spec) IsExpired(now time.Time) bool {
	if s.Timestamp == 0 || s.ExpiryIntervalMs == 0 {
		return false
	}
	return now.UnixMilli() > s.Timestamp+s.ExpiryIntervalMs
}

// WantsNotifications reports whether the request subscribes before writing.
func (s *Spec) WantsNotifications() bool {
	return s.NotifyCharHandle != ""
}

// ChunkSize returns the transfer unit in bytes, falling back to def.
func (s *Spec) ChunkSize(def int) int {
	if s.TransferUnit > 0 {
		return s.TransferUnit
	}
	if def > 0 {
		return def
	}
	return DefaultTransferUnit
}

// ConnectTimeout returns the requested connect timeout, falling back to def.
func (s *Spec) ConnectTimeout(def time.Duration) time.Duration {
	if s.ConnectTimeoutMs > 0 {
		return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
	}
	return def
}

// NotificationTimeout returns the requested notification timeout, falling back to def.
func (s *Spec) NotificationTimeout(def time.Duration) time.Duration {
	if s.NotificationTimeoutMs > 0 {
		return time.Duration(s.NotificationTimeoutMs) * time.Millisecond
	}
	return def
}
