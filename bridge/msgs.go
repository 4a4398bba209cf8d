package bridge

import (
	"bytes"
	"encoding/json"
)

const (
	// SourceFileMaker marks inbound messages posted by the host.
	// Anything else arriving on the inbound channel is ignored.
	SourceFileMaker = "filemaker"

	// ActionCallScript is the only action the host understands.
	ActionCallScript = "callScript"
)

// OutboundMessage is the envelope sent to the host for every script call.
type OutboundMessage struct {
	Action     string `json:"action"`
	ScriptName string `json:"scriptName"`
	Parameter  string `json:"parameter,omitempty"`
	// CallbackID is the correlation token the host echoes back.
	CallbackID string `json:"callbackId"`
}

// InboundMessage is a message delivered by the host through the
// asynchronous inbound channel.
type InboundMessage struct {
	Source     string          `json:"source"`
	CallbackID string          `json:"callbackId,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

// HasError reports whether the message carries an error payload. Falsy
// JSON values (null, false, 0, "") do not count, matching how the
// WebViewer side evaluates the field.
func (m InboundMessage) HasError() bool {
	return truthy(m.Error)
}

func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch string(v) {
	case "null", "false", "0", `""`:
		return false
	}
	return true
}

// CannedResult is the payload the simulated transport answers with.
var CannedResult = json.RawMessage(`{"success":true,"data":null}`)

type dataRequest struct {
	LayoutName string `json:"layoutName"`
	RecordID   string `json:"recordId,omitempty"`
}

type setDataRequest struct {
	LayoutName string         `json:"layoutName"`
	Data       map[string]any `json:"data"`
}

type logRequest struct {
	Message   string `json:"message"`
	Level     Level  `json:"level"`
	Timestamp string `json:"timestamp"`
}

type showMessageRequest struct {
	Message string      `json:"message"`
	Type    MessageKind `json:"type"`
}

type legacyParameter struct {
	Parameter  string `json:"parameter,omitempty"`
	CallbackID string `json:"callbackId"`
}
