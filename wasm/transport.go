//go:build js && wasm

package wasm

import (
	"fmt"
	"syscall/js"

	"github.com/fmbridge/fmbridge/bridge"
)

// lookup walks path from the global object. It returns false as soon as
// a step is missing, since Get on undefined throws.
func lookup(path ...string) (js.Value, bool) {
	v := js.Global()
	for _, name := range path {
		v = v.Get(name)
		if !v.Truthy() {
			return js.Undefined(), false
		}
	}
	return v, true
}

func isFunction(v js.Value, method string) bool {
	return v.Get(method).Type() == js.TypeFunction
}

// call invokes method on v and turns a thrown JS exception into an error.
func call(v js.Value, method string, args ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if jsErr, ok := r.(js.Error); ok {
				err = jsErr
				return
			}
			err = fmt.Errorf("%s: %v", method, r)
		}
	}()
	v.Call(method, args...)
	return nil
}

type messageHandler struct {
	v js.Value
}

// PostMessage passes the envelope as a plain object, which is what the
// WebViewer's structured clone expects.
func (h messageHandler) PostMessage(msg bridge.OutboundMessage) error {
	envelope := map[string]interface{}{
		"action":     msg.Action,
		"scriptName": msg.ScriptName,
		"callbackId": msg.CallbackID,
	}
	if msg.Parameter != "" {
		envelope["parameter"] = msg.Parameter
	}
	return call(h.v, "postMessage", envelope)
}

// webkitHandler returns window.webkit.messageHandlers.FileMakerHandler
// when it is usable.
func webkitHandler() bridge.MessageHandler {
	h, ok := lookup("webkit", "messageHandlers", "FileMakerHandler")
	if !ok || !isFunction(h, "postMessage") {
		return nil
	}
	return messageHandler{v: h}
}

type scriptPerformer struct {
	v js.Value
}

func (p scriptPerformer) PerformScript(scriptName, parameter string) error {
	return call(p.v, "PerformScript", scriptName, parameter)
}

// fileMakerObject returns window.FileMaker when it can run scripts.
func fileMakerObject() bridge.ScriptPerformer {
	fm, ok := lookup("FileMaker")
	if !ok || !isFunction(fm, "PerformScript") {
		return nil
	}
	return scriptPerformer{v: fm}
}

// Transports returns the WebViewer surfaces, checked on every call.
func Transports(embedCallbackID bool) []bridge.Transport {
	return []bridge.Transport{
		&bridge.ModernTransport{Lookup: webkitHandler},
		&bridge.LegacyTransport{Lookup: fileMakerObject, EmbedCallbackID: embedCallbackID},
	}
}

// Listen feeds window message events to b. The returned func removes
// the listener.
func Listen(b *bridge.Bridge) (remove func()) {
	listener := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			return nil
		}
		raw, ok := stringify(args[0].Get("data"))
		if ok {
			b.DeliverJSON([]byte(raw))
		}
		return nil
	})

	window := js.Global()
	window.Call("addEventListener", "message", listener)
	return func() {
		window.Call("removeEventListener", "message", listener)
		listener.Release()
	}
}

// stringify is JSON.stringify, reporting false for values it cannot
// encode (cycles, undefined, functions).
func stringify(v js.Value) (s string, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	out := js.Global().Get("JSON").Call("stringify", v)
	if out.Type() != js.TypeString {
		return "", false
	}
	return out.String(), true
}

// parse is JSON.parse; malformed input yields undefined.
func parse(raw []byte) (v js.Value) {
	if len(raw) == 0 {
		return js.Undefined()
	}
	defer func() {
		if recover() != nil {
			v = js.Undefined()
		}
	}()
	return js.Global().Get("JSON").Call("parse", string(raw))
}
