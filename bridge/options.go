package bridge

import (
	"encoding/json"
	"log/slog"
	"time"
)

type Option interface {
	setValue(*Bridge)
}

type optionFunc func(*Bridge)

func (f optionFunc) setValue(b *Bridge) { f(b) }

// WithTransports registers the native transports to try. They are
// tried modern first, then legacy, regardless of argument order; the
// simulated transport is always the last resort.
func WithTransports(transports ...Transport) Option {
	return optionFunc(func(b *Bridge) {
		b.transports = append(b.transports, transports...)
	})
}

// WithTimeout overrides DefaultTimeout for every call.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	})
}

// WithSimulatedDelay sets how long the development mode fallback waits
// before answering.
func WithSimulatedDelay(d time.Duration) Option {
	return optionFunc(func(b *Bridge) {
		if d >= 0 {
			b.simulated.delay = d
		}
	})
}

// WithScriptNames overrides the FileMaker script names used by the
// convenience calls. Empty fields keep their defaults.
func WithScriptNames(names ScriptNames) Option {
	return optionFunc(func(b *Bridge) {
		b.scripts = b.scripts.Merge(names)
	})
}

// WithLogger sets the logger used for local console output.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	})
}

// WithAlerter sets the last resort used by ShowMessage when the host
// cannot display the message.
func WithAlerter(a Alerter) Option {
	return optionFunc(func(b *Bridge) {
		if a != nil {
			b.alerter = a
		}
	})
}

// WithResultHandler registers the global handler invoked with the
// result of every non-error inbound message.
func WithResultHandler(fn func(result json.RawMessage)) Option {
	return optionFunc(func(b *Bridge) {
		b.onResult = fn
	})
}

// WithErrorHandler registers the global handler invoked with every
// inbound error payload.
func WithErrorHandler(fn func(payload json.RawMessage)) Option {
	return optionFunc(func(b *Bridge) {
		b.onError = fn
	})
}

// WithFailOnHostError makes an inbound error payload also fail the
// matching pending call with a *HostError. By default host errors only
// reach the global error handler and the caller waits for its timeout.
func WithFailOnHostError(enabled bool) Option {
	return optionFunc(func(b *Bridge) {
		b.failOnHostError = enabled
	})
}

// WithLogForwarding controls whether Log also sends each line to the
// host. It is on by default.
func WithLogForwarding(enabled bool) Option {
	return optionFunc(func(b *Bridge) {
		b.forwardLogs = enabled
	})
}
