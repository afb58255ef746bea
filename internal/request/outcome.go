package request

import (
	"errors"
	"net/http"
	"time"
)

// OperationError is a rejected request. StatusCode and Reason are sent to the
// client verbatim.
type OperationError struct {
	StatusCode int
	Reason     string
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Reason
}

// Is allows errors.Is to compare OperationError values by status and reason
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok || e == nil {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Reason == t.Reason
}

// Rejections known to clients.
var (
	// Synchronous, before any device interaction.
	ErrBadRequest = &OperationError{StatusCode: http.StatusBadRequest, Reason: "Bad request"}
	ErrExpired    = &OperationError{StatusCode: http.StatusBadRequest, Reason: "Request expired"}
	ErrBusy       = &OperationError{StatusCode: http.StatusInternalServerError, Reason: "Another request in progress"}
	ErrNotReady   = &OperationError{StatusCode: http.StatusInternalServerError, Reason: "BLE port not detected or not ready"}

	// Raised while the request runs.
	ErrConnectTimeout = &OperationError{StatusCode: http.StatusInternalServerError, Reason: "Ble connect timeout"}
	ErrConnectionLost = &OperationError{StatusCode: http.StatusInternalServerError, Reason: "Ble connection lost"}
	ErrOpTimeout      = &OperationError{StatusCode: http.StatusInternalServerError, Reason: "Ble operation timeout"}

	// The gateway is going down.
	ErrSerialClosed  = &OperationError{StatusCode: http.StatusInternalServerError, Reason: "Serial port closed"}
	ErrSerialFailure = &OperationError{StatusCode: http.StatusInternalServerError, Reason: "Serial port error"}
	ErrUnsupported   = &OperationError{StatusCode: http.StatusInternalServerError, Reason: "Unsupported BLE firmware"}
	ErrShuttingDown  = &OperationError{StatusCode: http.StatusServiceUnavailable, Reason: "Gateway shutting down"}
)

// Notifications is the result body of a notify request.
type Notifications struct {
	Notifications []string `json:"notifications"`
}

// Result is a successful outcome.
type Result struct {
	StatusCode int
	Body       *Notifications
}

// Success returns a plain 200 result.
func Success() *Result {
	return &Result{StatusCode: http.StatusOK}
}

// WithNotifications returns a 200 result carrying the collected notifications.
func WithNotifications(values []string) *Result {
	if values == nil {
		values = []string{}
	}
	return &Result{StatusCode: http.StatusOK, Body: &Notifications{Notifications: values}}
}

// Response is the JSON payload published back to the client.
type Response struct {
	Timestamp  int64          `json:"timestamp"`
	StatusCode int            `json:"statusCode"`
	Result     *Notifications `json:"result,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// NewResponse converts an outcome into its wire form. Errors that are not an
// OperationError become a generic 500.
func NewResponse(res *Result, err error, now time.Time) *Response {
	resp := &Response{Timestamp: now.UTC().UnixMilli()}
	if err != nil {
		var opErr *OperationError
		if !errors.As(err, &opErr) {
			opErr = &OperationError{StatusCode: http.StatusInternalServerError, Reason: err.Error()}
		}
		resp.StatusCode = opErr.StatusCode
		resp.Reason = opErr.Reason
		return resp
	}
	if res == nil {
		res = Success()
	}
	resp.StatusCode = res.StatusCode
	resp.Result = res.Body
	return resp
}
