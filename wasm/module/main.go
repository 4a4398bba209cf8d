//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/fmbridge/fmbridge/wasm"
)

func main() {
	// make window.fileMakerBridge available before widget code runs.
	if _, err := wasm.Install(wasm.ConfigFromGlobal()); err != nil {
		js.Global().Get("console").Call("error", "fileMakerBridge: "+err.Error())
		return
	}

	// block to keep the wasm module API available
	<-make(chan bool)
}
