//go:build js && wasm

package wasm

import (
	"syscall/js"
)

type Promise struct {
	jsValue js.Value
}

type ResolveFn = func(interface{})
type RejectFn = func(error)
type PromiseFn = func(ResolveFn, RejectFn)

// NewPromise returns a JS Promise settled by fn. fn runs inside the
// executor and must not block; start a goroutine for blocking work.
func NewPromise(fn PromiseFn) *Promise {
	executor := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolveFn, rejectFn := args[0], args[1]
		resolve := func(val interface{}) {
			resolveFn.Invoke(val)
		}
		reject := func(err error) {
			rejectFn.Invoke(js.Global().Get("Error").New(err.Error()))
		}

		fn(resolve, reject)
		return nil
	})
	// the executor runs synchronously inside the constructor
	defer executor.Release()

	jsPromise := js.Global().Get("Promise").New(executor)
	return &Promise{
		jsValue: jsPromise,
	}
}

func (p *Promise) JSValue() js.Value {
	return p.jsValue
}
