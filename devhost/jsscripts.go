package devhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

// JSScripts runs emulated FileMaker scripts written in JavaScript. A
// scripts file registers handlers with
//
//	registerScript("Get Web Data", function (parameter) {
//	    const p = JSON.parse(parameter);
//	    return { success: true, data: [] };
//	});
//
// A handler may return a Promise. Throwing (or rejecting) sends the
// error message back as the reply's error payload.
//
// All JavaScript runs on one event loop, so scripts execute one at a
// time like FileMaker's script queue.
type JSScripts struct {
	loop   *eventloop.EventLoop
	logger *slog.Logger

	mu  sync.RWMutex
	fns map[string]goja.Callable
}

type jsResult struct {
	value any
	err   error
}

// LoadJSScripts evaluates the scripts file at path.
func LoadJSScripts(path string, logger *slog.Logger) (*JSScripts, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scripts file: %w", err)
	}
	return newJSScripts(path, string(src), logger)
}

func newJSScripts(name, src string, logger *slog.Logger) (*JSScripts, error) {
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(require.NewRegistry()),
		eventloop.EnableConsole(true),
	)
	loop.Start()

	s := &JSScripts{
		loop:   loop,
		logger: logger,
		fns:    make(map[string]goja.Callable),
	}

	errCh := make(chan error, 1)
	ok := loop.RunOnLoop(func(vm *goja.Runtime) {
		if err := vm.Set("registerScript", s.registerScript(vm)); err != nil {
			errCh <- err
			return
		}
		_, err := vm.RunScript(name, src)
		errCh <- jsError(err)
	})
	if !ok {
		loop.Stop()
		return nil, errors.New("javascript event loop not running")
	}
	if err := <-errCh; err != nil {
		loop.Stop()
		return nil, fmt.Errorf("evaluate %s: %w", name, err)
	}

	return s, nil
}

func (s *JSScripts) registerScript(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if name == "" || !ok {
			panic(vm.NewTypeError("registerScript(name, fn) requires a script name and a function"))
		}

		s.mu.Lock()
		s.fns[name] = fn
		s.mu.Unlock()

		s.logger.Debug("registered javascript script", "script", name)
		return goja.Undefined()
	}
}

// Has reports whether a script named name was registered.
func (s *JSScripts) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fns[name]
	return ok
}

func (s *JSScripts) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.fns))
	for name := range s.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Script returns name as a Script for a Registry.
func (s *JSScripts) Script(name string) Script {
	return func(ctx context.Context, parameter string) (any, error) {
		return s.Call(ctx, name, parameter)
	}
}

// Call runs the script registered under name with parameter and waits
// for its value, resolving returned Promises.
func (s *JSScripts) Call(ctx context.Context, name, parameter string) (any, error) {
	s.mu.RLock()
	fn, ok := s.fns[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScript, name)
	}

	resCh := make(chan jsResult, 1)
	scheduled := s.loop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := fn(goja.Undefined(), vm.ToValue(parameter))
		if err != nil {
			resCh <- jsResult{err: jsError(err)}
			return
		}
		settleValue(vm, v, resCh)
	})
	if !scheduled {
		return nil, errors.New("javascript event loop not running")
	}

	select {
	case r := <-resCh:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settleValue exports v, waiting for it first when it is a Promise. It
// must run on the loop.
func settleValue(vm *goja.Runtime, v goja.Value, resCh chan<- jsResult) {
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		resCh <- jsResult{value: v.Export()}
		return
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		resCh <- jsResult{value: p.Result().Export()}
		return
	case goja.PromiseStateRejected:
		resCh <- jsResult{err: errors.New(errorText(p.Result()))}
		return
	}

	obj := v.ToObject(vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		resCh <- jsResult{err: errors.New("promise without then")}
		return
	}
	onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		resCh <- jsResult{value: call.Argument(0).Export()}
		return goja.Undefined()
	})
	onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		resCh <- jsResult{err: errors.New(errorText(call.Argument(0)))}
		return goja.Undefined()
	})
	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		resCh <- jsResult{err: jsError(err)}
	}
}

// Close stops the event loop.
func (s *JSScripts) Close() {
	s.loop.Stop()
}

func jsError(err error) error {
	if err == nil {
		return nil
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return errors.New(errorText(ex.Value()))
	}
	return err
}

// errorText prefers an Error's message over its "Error: ..." rendering.
func errorText(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "script failed"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return v.String()
}
