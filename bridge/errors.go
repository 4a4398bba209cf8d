package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no matching response arrives before
	// the call deadline.
	ErrTimeout = errors.New("FileMaker script call timeout")

	// ErrEmptyScriptName is returned by CallScript for an empty script name.
	ErrEmptyScriptName = errors.New("script name must not be empty")

	// ErrTransportUnavailable is returned by a transport whose native
	// surface disappeared between probing and sending.
	ErrTransportUnavailable = errors.New("transport not available")
)

// DispatchError is returned when the selected transport fails to hand
// the envelope to the host.
type DispatchError struct {
	Transport Kind
	Script    string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %q via %s transport: %s", e.Script, e.Transport, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// HostError carries an explicit error payload reported by the host.
// Calls only fail with it when the bridge was built with
// WithFailOnHostError.
type HostError struct {
	Script     string
	CallbackID string
	Payload    json.RawMessage
}

func (e *HostError) Error() string {
	return fmt.Sprintf("FileMaker script %q failed: %s", e.Script, hostErrorText(e.Payload))
}

// hostErrorText unwraps string payloads and {"message": ...} objects so
// the common cases read naturally.
func hostErrorText(payload json.RawMessage) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(payload)
}
