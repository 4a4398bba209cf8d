package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Kind identifies a transport variant. Lower kinds win when more than
// one transport is available.
type Kind int

const (
	KindModern Kind = iota
	KindLegacy
	KindSimulated
)

func (k Kind) String() string {
	switch k {
	case KindModern:
		return "modern"
	case KindLegacy:
		return "legacy"
	case KindSimulated:
		return "simulated"
	default:
		return fmt.Sprintf("Unknown transport kind: %d", int(k))
	}
}

// A Transport hands an envelope to the host. Transports are one-way:
// responses always come back through Bridge.Deliver.
type Transport interface {
	Kind() Kind
	// Available reports whether the native surface exists. It is called on every
	// script call so surfaces that appear or vanish are honored.
	Available() bool
	Send(msg OutboundMessage) error
}

// MessageHandler is the structured-message surface exposed by modern
// WebViewers (webkit.messageHandlers.FileMakerHandler).
type MessageHandler interface {
	PostMessage(msg OutboundMessage) error
}

// ScriptPerformer is the direct invocation surface exposed by legacy
// WebViewers (FileMaker.PerformScript).
type ScriptPerformer interface {
	PerformScript(scriptName, parameter string) error
}

// ModernTransport posts the whole envelope to a MessageHandler.
type ModernTransport struct {
	// Lookup returns the current handler or nil when the surface is absent.
	Lookup func() MessageHandler
}

func (t *ModernTransport) Kind() Kind { return KindModern }

func (t *ModernTransport) Available() bool {
	return t.Lookup != nil && t.Lookup() != nil
}

func (t *ModernTransport) Send(msg OutboundMessage) error {
	if t.Lookup == nil {
		return ErrTransportUnavailable
	}
	h := t.Lookup()
	if h == nil {
		return ErrTransportUnavailable
	}
	return h.PostMessage(msg)
}

// LegacyTransport calls PerformScript directly. The surface has no
// envelope, so the correlation token only reaches the host when
// EmbedCallbackID is set; host scripts must then echo callbackId in
// their reply. Without it, calls made here can only end in a timeout
// unless the host answers some other way.
type LegacyTransport struct {
	Lookup func() ScriptPerformer

	// EmbedCallbackID replaces the parameter with
	// {"parameter": ..., "callbackId": ...}.
	EmbedCallbackID bool
}

func (t *LegacyTransport) Kind() Kind { return KindLegacy }

func (t *LegacyTransport) Available() bool {
	return t.Lookup != nil && t.Lookup() != nil
}

func (t *LegacyTransport) Send(msg OutboundMessage) error {
	if t.Lookup == nil {
		return ErrTransportUnavailable
	}
	p := t.Lookup()
	if p == nil {
		return ErrTransportUnavailable
	}

	param := msg.Parameter
	if t.EmbedCallbackID {
		wrapped, err := json.Marshal(legacyParameter{
			Parameter:  msg.Parameter,
			CallbackID: msg.CallbackID,
		})
		if err != nil {
			return err
		}
		param = string(wrapped)
	}

	return p.PerformScript(msg.ScriptName, param)
}

// simulatedTransport stands in for the host in development mode. It
// never dispatches externally; it completes the pending call with a
// canned payload after a fixed delay.
type simulatedTransport struct {
	delay    time.Duration
	result   json.RawMessage
	logger   *slog.Logger
	complete func(callbackID string, result json.RawMessage)
}

func (t *simulatedTransport) Kind() Kind      { return KindSimulated }
func (t *simulatedTransport) Available() bool { return true }

func (t *simulatedTransport) Send(msg OutboundMessage) error {
	t.logger.Info("FileMaker Bridge (Dev Mode)",
		"script", msg.ScriptName,
		"parameter", msg.Parameter,
		"callback_id", msg.CallbackID,
	)

	time.AfterFunc(t.delay, func() {
		t.complete(msg.CallbackID, t.result)
	})
	return nil
}
