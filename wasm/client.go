//go:build js && wasm

package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"
	"time"

	"github.com/fmbridge/fmbridge/autosave"
	"github.com/fmbridge/fmbridge/bridge"
	"github.com/fmbridge/fmbridge/config"
	"github.com/fmbridge/fmbridge/logger"
)

// GlobalName is the window property the API is installed under.
const GlobalName = "fileMakerBridge"

// ConfigName is the optional window property read by ConfigFromGlobal.
const ConfigName = "fileMakerBridgeConfig"

// Config tunes the bridge from the page.
type Config struct {
	Timeout         time.Duration
	SimulatedDelay  time.Duration
	EmbedCallbackID bool
	FailOnHostError bool
	ScriptNames     bridge.ScriptNames
	Logging         config.LoggingConfig

	// InitializeScript runs once after Install when set.
	InitializeScript string
	WidgetName       string
	WidgetVersion    string

	// AutoSave enables scheduleSave, which writes to DataLayout.
	AutoSave         bool
	DataLayout       string
	AutoSaveInterval time.Duration
}

// ConfigFromGlobal reads window.fileMakerBridgeConfig. Missing or falsy
// properties keep the bridge defaults.
//
//	window.fileMakerBridgeConfig = {
//	  timeoutMs: 10000,
//	  embedCallbackId: true,
//	  scripts: { getData: "Load Invoice", initialize: "Widget Loaded" },
//	  autoSave: true,
//	  dataLayout: "Invoices",
//	  logLevel: "debug",
//	};
func ConfigFromGlobal() Config {
	defaults := config.Default()
	cfg := Config{
		Timeout:          bridge.DefaultTimeout,
		SimulatedDelay:   bridge.DefaultSimulatedDelay,
		WidgetName:       defaults.Widget.Name,
		WidgetVersion:    defaults.Widget.Version,
		AutoSave:         defaults.Data.AutoSave,
		DataLayout:       defaults.Layout(config.LayoutData, ""),
		AutoSaveInterval: defaults.AutoSaveInterval(),
	}

	obj, ok := lookup(ConfigName)
	if !ok {
		return cfg
	}

	if ms, ok := millis(obj, "timeoutMs"); ok && ms > 0 {
		cfg.Timeout = ms
	}
	if ms, ok := millis(obj, "simulatedDelayMs"); ok {
		cfg.SimulatedDelay = ms
	}
	cfg.EmbedCallbackID = obj.Get("embedCallbackId").Truthy()
	cfg.FailOnHostError = obj.Get("failOnHostError").Truthy()

	if scripts := obj.Get("scripts"); scripts.Truthy() {
		str := func(name string) string {
			if v := scripts.Get(name); v.Type() == js.TypeString {
				return v.String()
			}
			return ""
		}
		cfg.InitializeScript = str(config.ScriptInitialize)
		cfg.ScriptNames = bridge.ScriptNames{
			GetData:     str(config.ScriptGetData),
			SetData:     str(config.ScriptSetData),
			Log:         str(config.ScriptLog),
			ShowMessage: str(config.ScriptShowMessage),
		}
	}
	if v := obj.Get("dataLayout"); v.Type() == js.TypeString && v.String() != "" {
		cfg.DataLayout = v.String()
	}
	if v := obj.Get("autoSave"); v.Type() == js.TypeBoolean {
		cfg.AutoSave = v.Bool()
	}
	if ms, ok := millis(obj, "autoSaveIntervalMs"); ok && ms > 0 {
		cfg.AutoSaveInterval = ms
	}
	if v := obj.Get("widgetName"); v.Type() == js.TypeString {
		cfg.WidgetName = v.String()
	}
	if v := obj.Get("widgetVersion"); v.Type() == js.TypeString {
		cfg.WidgetVersion = v.String()
	}
	if v := obj.Get("logLevel"); v.Type() == js.TypeString {
		cfg.Logging.Level = v.String()
	}

	return cfg
}

// millis reads a numeric millisecond property. Anything but a number,
// "5000" included, is ignored since Int panics on it.
func millis(obj js.Value, name string) (time.Duration, bool) {
	v := obj.Get(name)
	if v.Type() != js.TypeNumber {
		return 0, false
	}
	return time.Duration(v.Int()) * time.Millisecond, true
}

// consoleWriter sends log lines to console.log.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	js.Global().Get("console").Call("log", string(p))
	return len(p), nil
}

// API is the JavaScript face of a Bridge.
type API struct {
	b        *bridge.Bridge
	saver    *autosave.Saver
	autoSave bool
	obj      js.Value
	remove   func()
}

// Install builds the bridge, subscribes it to window messages and
// publishes it as window.fileMakerBridge.
func Install(cfg Config) (*API, error) {
	// an empty level is info, so log() always reaches the console
	log, err := logger.NewWithWriter(cfg.Logging, consoleWriter{})
	if err != nil {
		return nil, err
	}

	a := &API{
		obj:      js.Global().Get("Object").New(),
		autoSave: cfg.AutoSave,
	}
	a.obj.Set("onFMScriptResult", js.Null())
	a.obj.Set("onFMError", js.Null())

	a.b = bridge.New(
		bridge.WithTransports(Transports(cfg.EmbedCallbackID)...),
		bridge.WithTimeout(cfg.Timeout),
		bridge.WithSimulatedDelay(cfg.SimulatedDelay),
		bridge.WithScriptNames(cfg.ScriptNames),
		bridge.WithFailOnHostError(cfg.FailOnHostError),
		bridge.WithLogger(log),
		bridge.WithAlerter(bridge.AlertFunc(alert)),
		bridge.WithResultHandler(func(result json.RawMessage) {
			a.invokeHandler("onFMScriptResult", result)
		}),
		bridge.WithErrorHandler(func(payload json.RawMessage) {
			a.invokeHandler("onFMError", payload)
		}),
	)

	a.saver = autosave.New(a.b, cfg.DataLayout, cfg.AutoSaveInterval)
	a.saver.SetLogger(log.With("component", "autosave"))

	a.obj.Set("callFMScript", js.FuncOf(a.callFMScript))
	a.obj.Set("getFMData", js.FuncOf(a.getFMData))
	a.obj.Set("setFMData", js.FuncOf(a.setFMData))
	a.obj.Set("log", js.FuncOf(a.log))
	a.obj.Set("showMessage", js.FuncOf(a.showMessage))
	a.obj.Set("scheduleSave", js.FuncOf(a.scheduleSave))
	a.obj.Set("flushSave", js.FuncOf(a.flushSave))

	a.remove = Listen(a.b)
	js.Global().Set(GlobalName, a.obj)

	if cfg.InitializeScript != "" {
		go a.initialize(cfg)
	}
	return a, nil
}

type initializeParams struct {
	WidgetName string `json:"widgetName"`
	Version    string `json:"version"`
}

// initialize runs the configured initialize script once, telling the
// host which widget loaded.
func (a *API) initialize(cfg Config) {
	param, err := json.Marshal(initializeParams{WidgetName: cfg.WidgetName, Version: cfg.WidgetVersion})
	if err != nil {
		return
	}
	if _, err := a.b.CallScript(context.Background(), cfg.InitializeScript, string(param)); err != nil {
		a.b.Log("FileMaker initialization failed: "+err.Error(), bridge.LevelError)
		return
	}
	a.b.Log("FileMaker initialization completed", bridge.LevelInfo)
}

// Bridge returns the underlying bridge.
func (a *API) Bridge() *bridge.Bridge {
	return a.b
}

func alert(message string) {
	js.Global().Call("alert", message)
}

// invokeHandler calls the handler property name if the page set one.
// Exceptions thrown by it must not escape into Deliver.
func (a *API) invokeHandler(name string, raw json.RawMessage) {
	fn := a.obj.Get(name)
	if fn.Type() != js.TypeFunction {
		return
	}
	if err := call(a.obj, name, parse(raw)); err != nil {
		a.b.Log(fmt.Sprintf("%s handler failed: %s", name, err), bridge.LevelError)
	}
}

func argString(args []js.Value, i int) string {
	if i >= len(args) || args[i].IsUndefined() || args[i].IsNull() {
		return ""
	}
	return args[i].String()
}

// resultPromise runs fn off the JS thread and settles a Promise with its
// parsed result.
func resultPromise(fn func() (json.RawMessage, error)) js.Value {
	return NewPromise(func(resolve ResolveFn, reject RejectFn) {
		go func() {
			result, err := fn()
			if err != nil {
				reject(err)
				return
			}
			resolve(parse(result))
		}()
	}).JSValue()
}

// callFMScript(scriptName, parameter?) Promise
func (a *API) callFMScript(this js.Value, args []js.Value) interface{} {
	scriptName := argString(args, 0)
	parameter := argString(args, 1)
	return resultPromise(func() (json.RawMessage, error) {
		return a.b.CallScript(context.Background(), scriptName, parameter)
	})
}

// getFMData(layoutName, recordId?) Promise
func (a *API) getFMData(this js.Value, args []js.Value) interface{} {
	layoutName := argString(args, 0)
	recordID := argString(args, 1)
	return resultPromise(func() (json.RawMessage, error) {
		return a.b.GetData(context.Background(), layoutName, recordID)
	})
}

// argObject decodes args[i] through JSON.stringify.
func argObject(args []js.Value, i int) (map[string]any, error) {
	if i >= len(args) {
		return nil, nil
	}
	raw, ok := stringify(args[i])
	if !ok {
		return nil, fmt.Errorf("data is not serializable")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// setFMData(layoutName, data) Promise
func (a *API) setFMData(this js.Value, args []js.Value) interface{} {
	layoutName := argString(args, 0)
	data, decodeErr := argObject(args, 1)

	return resultPromise(func() (json.RawMessage, error) {
		if decodeErr != nil {
			return nil, decodeErr
		}
		return a.b.SetData(context.Background(), layoutName, data)
	})
}

// log(message, level?)
func (a *API) log(this js.Value, args []js.Value) interface{} {
	a.b.Log(argString(args, 0), bridge.Level(argString(args, 1)))
	return nil
}

// showMessage(message, type?) never rejects; it falls back to alert.
func (a *API) showMessage(this js.Value, args []js.Value) interface{} {
	message := argString(args, 0)
	kind := bridge.MessageKind(argString(args, 1))
	go a.b.ShowMessage(context.Background(), message, kind)
	return nil
}

// scheduleSave(data) debounces a setFMData on the data layout when
// autoSave is enabled. Failures are only logged.
func (a *API) scheduleSave(this js.Value, args []js.Value) interface{} {
	if !a.autoSave {
		a.b.Log("scheduleSave: auto-save is disabled", bridge.LevelWarn)
		return nil
	}
	data, err := argObject(args, 0)
	if err == nil && data == nil {
		err = fmt.Errorf("data is required")
	}
	if err != nil {
		a.b.Log("scheduleSave: "+err.Error(), bridge.LevelWarn)
		return nil
	}
	a.saver.Schedule(data)
	return nil
}

// flushSave() Promise saves scheduled data now.
func (a *API) flushSave(this js.Value, args []js.Value) interface{} {
	return NewPromise(func(resolve ResolveFn, reject RejectFn) {
		go func() {
			if err := a.saver.Flush(context.Background()); err != nil {
				reject(err)
				return
			}
			resolve(nil)
		}()
	}).JSValue()
}

// Close stops auto-saving and unsubscribes from window messages.
func (a *API) Close() {
	a.saver.Stop()
	a.remove()
}
