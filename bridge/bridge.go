// Package bridge turns the one-way native call surfaces of a FileMaker
// WebViewer into awaitable script calls.
//
// Every call is registered under a unique correlation token before it
// is dispatched. The host answers asynchronously through Deliver, and
// the answer is paired with its call by token, never by order. Calls
// that get no answer fail with ErrTimeout.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	charmLog "github.com/charmbracelet/log"

	"github.com/fmbridge/fmbridge/random"
)

const (
	// DefaultTimeout is how long a call waits for its response.
	DefaultTimeout = 30 * time.Second

	// DefaultSimulatedDelay is how long the development mode fallback
	// waits before answering.
	DefaultSimulatedDelay = 100 * time.Millisecond
)

// ScriptNames maps the convenience calls to FileMaker script names.
type ScriptNames struct {
	GetData     string
	SetData     string
	Log         string
	ShowMessage string
}

// DefaultScriptNames returns the script names the template's FileMaker
// file ships with.
func DefaultScriptNames() ScriptNames {
	return ScriptNames{
		GetData:     "Get Web Data",
		SetData:     "Set Web Data",
		Log:         "Log Web Message",
		ShowMessage: "Show Web Message",
	}
}

// Merge returns n with every non-empty field of o applied.
func (n ScriptNames) Merge(o ScriptNames) ScriptNames {
	if o.GetData != "" {
		n.GetData = o.GetData
	}
	if o.SetData != "" {
		n.SetData = o.SetData
	}
	if o.Log != "" {
		n.Log = o.Log
	}
	if o.ShowMessage != "" {
		n.ShowMessage = o.ShowMessage
	}
	return n
}

// Level is a Log severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MessageKind is the style of a ShowMessage notification.
type MessageKind string

const (
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
	MessageWarning MessageKind = "warning"
)

// An Alerter shows a message to the user without going through the
// host. In a WebViewer this is window.alert.
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to the Alerter interface.
type AlertFunc func(message string)

func (f AlertFunc) Alert(message string) { f(message) }

// A Bridge correlates script calls with the host's asynchronous
// responses. Create one per process with New and share it.
type Bridge struct {
	transports []Transport
	simulated  *simulatedTransport

	timeout         time.Duration
	scripts         ScriptNames
	logger          *slog.Logger
	alerter         Alerter
	onResult        func(result json.RawMessage)
	onError         func(payload json.RawMessage)
	failOnHostError bool
	forwardLogs     bool

	callCntr uint64

	pendingMu sync.Mutex
	pending   map[string]*pendingCall
}

type pendingCall struct {
	script  string
	created time.Time
	timer   *time.Timer
	// done is buffered so the settling side never blocks, even when
	// the caller has stopped waiting.
	done chan callResult
}

type callResult struct {
	result json.RawMessage
	err    error
}

// New returns a Bridge. Without transports every call is answered by
// the development mode simulation.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		timeout:     DefaultTimeout,
		scripts:     DefaultScriptNames(),
		logger:      defaultLogger(),
		forwardLogs: true,
		pending:     make(map[string]*pendingCall),
	}
	b.alerter = AlertFunc(func(message string) {
		fmt.Fprintf(os.Stderr, "ALERT: %s\n", message)
	})
	b.simulated = &simulatedTransport{
		delay:    DefaultSimulatedDelay,
		result:   CannedResult,
		complete: b.completeSimulated,
	}

	for _, opt := range opts {
		opt.setValue(b)
	}

	b.simulated.logger = b.logger
	sort.SliceStable(b.transports, func(i, j int) bool {
		return b.transports[i].Kind() < b.transports[j].Kind()
	})

	return b
}

// logOutput is where a Bridge without WithLogger prints.
var logOutput io.Writer = os.Stderr

// defaultLogger prints Log lines and warnings to logOutput, like the
// WebViewer console would. Debug output is dropped.
func defaultLogger() *slog.Logger {
	return slog.New(charmLog.NewWithOptions(logOutput, charmLog.Options{
		Level:           charmLog.InfoLevel,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "fmbridge",
	}))
}

// CallScript runs a FileMaker script and waits for its result.
//
// It fails with ErrTimeout when the host does not answer in time and
// with a *DispatchError when the transport rejects the envelope.
// Cancelling ctx stops the wait but leaves the call registered until
// its own timeout reaps it.
func (b *Bridge) CallScript(ctx context.Context, scriptName, parameter string) (json.RawMessage, error) {
	if scriptName == "" {
		return nil, ErrEmptyScriptName
	}

	callbackID := random.CallbackID(time.Now(), atomic.AddUint64(&b.callCntr, 1))
	call := b.register(callbackID, scriptName)

	t := b.selectTransport()
	msg := OutboundMessage{
		Action:     ActionCallScript,
		ScriptName: scriptName,
		Parameter:  parameter,
		CallbackID: callbackID,
	}

	if err := send(t, msg); err != nil {
		b.take(callbackID)
		return nil, &DispatchError{Transport: t.Kind(), Script: scriptName, Err: err}
	}

	select {
	case r := <-call.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetData asks the host for layout data. An empty recordID requests the
// whole layout.
func (b *Bridge) GetData(ctx context.Context, layoutName, recordID string) (json.RawMessage, error) {
	param, err := json.Marshal(dataRequest{LayoutName: layoutName, RecordID: recordID})
	if err != nil {
		return nil, err
	}
	return b.CallScript(ctx, b.scripts.GetData, string(param))
}

// SetData writes fields to a layout.
func (b *Bridge) SetData(ctx context.Context, layoutName string, data map[string]any) (json.RawMessage, error) {
	param, err := json.Marshal(setDataRequest{LayoutName: layoutName, Data: data})
	if err != nil {
		return nil, err
	}
	return b.CallScript(ctx, b.scripts.SetData, string(param))
}

const isoMillis = "2006-01-02T15:04:05.000Z"

// Log writes message to the local logger and forwards it to the host
// in the background. Forwarding failures are dropped.
func (b *Bridge) Log(message string, level Level) {
	if level == "" {
		level = LevelInfo
	}
	now := time.Now().UTC()
	timestamp := now.Format(isoMillis)
	line := fmt.Sprintf("[%s] %s: %s", timestamp, strings.ToUpper(string(level)), message)

	b.logger.Log(context.Background(), level.slogLevel(), message, "timestamp", timestamp)

	if !b.forwardLogs {
		return
	}

	param, err := json.Marshal(logRequest{Message: line, Level: level, Timestamp: timestamp})
	if err != nil {
		return
	}
	go func() {
		_, err := b.CallScript(context.Background(), b.scripts.Log, string(param))
		if err != nil {
			b.logger.Debug("log forwarding failed", "error", err)
		}
	}()
}

// ShowMessage asks the host to display a notification. If the host call
// fails for any reason the message goes to the Alerter instead, so it is
// never silently lost.
func (b *Bridge) ShowMessage(ctx context.Context, message string, kind MessageKind) {
	if kind == "" {
		kind = MessageSuccess
	}

	param, err := json.Marshal(showMessageRequest{Message: message, Type: kind})
	if err == nil {
		_, err = b.CallScript(ctx, b.scripts.ShowMessage, string(param))
	}
	if err != nil {
		b.logger.Warn("show message fell back to alert", "error", err)
		b.alerter.Alert(message)
	}
}

// Deliver handles one inbound message from the host. Messages without
// the filemaker source marker are ignored.
//
// An error payload goes to the error handler and does not reach the
// result handler. Otherwise the matching pending call, if any, is
// resolved and the result handler runs regardless.
func (b *Bridge) Deliver(msg InboundMessage) {
	if msg.Source != SourceFileMaker {
		return
	}

	if msg.HasError() {
		if b.onError != nil {
			b.onError(msg.Error)
		}
		if b.failOnHostError && msg.CallbackID != "" {
			b.settle(msg.CallbackID, func(script string) callResult {
				return callResult{err: &HostError{
					Script:     script,
					CallbackID: msg.CallbackID,
					Payload:    msg.Error,
				}}
			})
		}
		return
	}

	if msg.CallbackID != "" {
		b.settle(msg.CallbackID, func(string) callResult {
			return callResult{result: msg.Result}
		})
	}

	if b.onResult != nil {
		b.onResult(msg.Result)
	}
}

// DeliverJSON decodes raw and hands it to Deliver. Payloads that are
// not JSON objects are ignored like any other foreign message.
func (b *Bridge) DeliverJSON(raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.logger.Debug("ignoring undecodable inbound message", "error", err)
		return
	}
	b.Deliver(msg)
}

// Pending returns the number of calls still waiting for a response.
func (b *Bridge) Pending() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

// HasPending reports whether callbackID is still waiting for a response.
func (b *Bridge) HasPending(callbackID string) bool {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	_, ok := b.pending[callbackID]
	return ok
}

func (b *Bridge) selectTransport() Transport {
	for _, t := range b.transports {
		if t.Available() {
			return t
		}
	}
	return b.simulated
}

// send converts a panicking native surface into an ordinary dispatch
// error.
func send(t Transport, msg OutboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return t.Send(msg)
}

// register adds the pending call and arms its timeout. Both happen
// before dispatch so a fast response always finds its entry.
func (b *Bridge) register(callbackID, script string) *pendingCall {
	call := &pendingCall{
		script:  script,
		created: time.Now(),
		done:    make(chan callResult, 1),
	}

	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	b.pending[callbackID] = call
	call.timer = time.AfterFunc(b.timeout, func() {
		b.expire(callbackID)
	})

	return call
}

// take removes and returns the pending call for callbackID. Whoever
// takes an entry is the only one allowed to complete it.
func (b *Bridge) take(callbackID string) *pendingCall {
	b.pendingMu.Lock()
	call, ok := b.pending[callbackID]
	if ok {
		delete(b.pending, callbackID)
	}
	b.pendingMu.Unlock()

	if !ok {
		return nil
	}
	call.timer.Stop()
	return call
}

func (b *Bridge) settle(callbackID string, outcome func(script string) callResult) bool {
	call := b.take(callbackID)
	if call == nil {
		return false
	}
	call.done <- outcome(call.script)
	return true
}

func (b *Bridge) expire(callbackID string) {
	call := b.take(callbackID)
	if call == nil {
		return
	}
	b.logger.Debug("script call timed out",
		"script", call.script,
		"callback_id", callbackID,
		"elapsed", time.Since(call.created),
	)
	call.done <- callResult{err: fmt.Errorf("call %q: %w", call.script, ErrTimeout)}
}

func (b *Bridge) completeSimulated(callbackID string, result json.RawMessage) {
	b.settle(callbackID, func(string) callResult {
		return callResult{result: result}
	})
}
