// Package autosave debounces widget data writes to a FileMaker layout.
package autosave

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DataSetter writes fields to a layout. *bridge.Bridge satisfies it.
type DataSetter interface {
	SetData(ctx context.Context, layoutName string, data map[string]any) (json.RawMessage, error)
}

// Saver writes the most recently scheduled data once no new data has
// been scheduled for the interval.
type Saver struct {
	setter   DataSetter
	layout   string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	latest  map[string]any
	gen     uint64
	stopped bool

	// saves in flight, so Stop can wait for them
	wg sync.WaitGroup
}

// New returns a Saver writing to layout through setter.
func New(setter DataSetter, layout string, interval time.Duration) *Saver {
	return &Saver{
		setter:   setter,
		layout:   layout,
		interval: interval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets where swallowed save failures are reported.
func (s *Saver) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Schedule replaces the pending data and restarts the countdown.
func (s *Saver) Schedule(data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.latest = data
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.interval, func() {
		s.fire(gen)
	})
}

func (s *Saver) fire(gen uint64) {
	s.mu.Lock()
	// a newer Schedule or a Flush got here first
	if gen != s.gen || s.latest == nil || s.stopped {
		s.mu.Unlock()
		return
	}
	data := s.take()
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.save(context.Background(), data)
}

// Flush saves pending data now instead of waiting for the countdown.
// Unlike scheduled saves it reports the failure.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.latest == nil {
		s.mu.Unlock()
		return nil
	}
	data := s.take()
	s.mu.Unlock()

	_, err := s.setter.SetData(ctx, s.layout, data)
	return err
}

// Pending reports whether data is waiting to be saved.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest != nil
}

// Stop cancels the countdown and drops pending data. It waits for a
// save that already started.
func (s *Saver) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.latest = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// take must be called with mu held.
func (s *Saver) take() map[string]any {
	data := s.latest
	s.latest = nil
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	return data
}

func (s *Saver) save(ctx context.Context, data map[string]any) {
	if _, err := s.setter.SetData(ctx, s.layout, data); err != nil {
		s.logger.Debug("auto-save failed", "layout", s.layout, "error", err)
		return
	}
	s.logger.Debug("auto-saved", "layout", s.layout, "fields", len(data))
}
