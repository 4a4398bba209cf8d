package devhost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/fmbridge/fmbridge/bridge"
	"github.com/fmbridge/fmbridge/upload"
)

// ErrUnknownScript is reported for script names nothing is registered
// under.
var ErrUnknownScript = errors.New("unknown script")

// Script runs one emulated FileMaker script. The returned value is sent
// back as the reply's result.
type Script func(ctx context.Context, parameter string) (any, error)

// Registry maps script names to scripts.
type Registry struct {
	mu      sync.RWMutex
	scripts map[string]Script
}

func NewRegistry() *Registry {
	return &Registry{scripts: make(map[string]Script)}
}

func (r *Registry) Register(name string, s Script) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[name] = s
}

func (r *Registry) Lookup(name string) (Script, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts[name]
	return s, ok
}

// Names returns the registered script names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scripts))
	for name := range r.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Record is one emulated layout record.
type Record map[string]any

// Message is a notification a widget asked the host to show.
type Message struct {
	Text string `json:"message"`
	Type string `json:"type"`
}

type uploadState struct {
	fileName   string
	mimeType   string
	size       int64
	chunkCount int
	chunks     map[int][]byte
}

// builtins is the in-memory state behind the default scripts.
type builtins struct {
	logger    *slog.Logger
	uploadDir string
	version   string

	mu       sync.Mutex
	layouts  map[string]map[string]Record
	nextID   int
	messages []Message
	uploads  map[string]*uploadState
	files    map[string][]byte
}

func newBuiltins(logger *slog.Logger, uploadDir, version string) *builtins {
	return &builtins{
		logger:    logger,
		uploadDir: uploadDir,
		version:   version,
		layouts:   make(map[string]map[string]Record),
		uploads:   make(map[string]*uploadState),
		files:     make(map[string][]byte),
	}
}

func (b *builtins) register(r *Registry, names bridge.ScriptNames, uploadScript string) {
	r.Register(names.GetData, b.getData)
	r.Register(names.SetData, b.setData)
	r.Register(names.Log, b.log)
	r.Register(names.ShowMessage, b.showMessage)
	r.Register(uploadScript, b.uploadChunk)
	r.Register("Test Connection", b.testConnection)
}

type dataParam struct {
	LayoutName string         `json:"layoutName"`
	RecordID   string         `json:"recordId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

func decodeParam(parameter string, v any) error {
	if parameter == "" {
		return errors.New("missing script parameter")
	}
	if err := json.Unmarshal([]byte(parameter), v); err != nil {
		return fmt.Errorf("invalid script parameter: %w", err)
	}
	return nil
}

// getData returns copies; replies are encoded after mu is released and
// setData keeps writing to the stored records.
func (b *builtins) getData(_ context.Context, parameter string) (any, error) {
	var p dataParam
	if err := decodeParam(parameter, &p); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.layouts[p.LayoutName]
	if p.RecordID != "" {
		rec, ok := records[p.RecordID]
		if !ok {
			return nil, fmt.Errorf("record %s not found on layout %q", p.RecordID, p.LayoutName)
		}
		return map[string]any{"success": true, "data": maps.Clone(rec)}, nil
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		c, _ := strconv.Atoi(ids[j])
		return a < c
	})
	list := make([]Record, 0, len(ids))
	for _, id := range ids {
		list = append(list, maps.Clone(records[id]))
	}
	return map[string]any{"success": true, "data": list}, nil
}

// setData creates a record, or updates the one named by data.recordId.
func (b *builtins) setData(_ context.Context, parameter string) (any, error) {
	var p dataParam
	if err := decodeParam(parameter, &p); err != nil {
		return nil, err
	}
	if p.LayoutName == "" {
		return nil, errors.New("layoutName is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.layouts[p.LayoutName]
	if records == nil {
		records = make(map[string]Record)
		b.layouts[p.LayoutName] = records
	}

	id, _ := p.Data["recordId"].(string)
	rec, ok := records[id]
	if !ok {
		b.nextID++
		id = strconv.Itoa(b.nextID)
		rec = Record{"recordId": id}
		records[id] = rec
	}
	for k, v := range p.Data {
		if k == "recordId" {
			continue
		}
		rec[k] = v
	}

	return map[string]any{"success": true, "recordId": id}, nil
}

type logParam struct {
	Message   string `json:"message"`
	Level     string `json:"level"`
	Timestamp string `json:"timestamp"`
}

func (b *builtins) log(ctx context.Context, parameter string) (any, error) {
	var p logParam
	if err := decodeParam(parameter, &p); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	switch p.Level {
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	b.logger.Log(ctx, level, p.Message, "component", "widget")
	return map[string]any{"success": true}, nil
}

func (b *builtins) showMessage(_ context.Context, parameter string) (any, error) {
	var m Message
	if err := decodeParam(parameter, &m); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.messages = append(b.messages, m)
	b.mu.Unlock()

	b.logger.Info("Show Web Message", "type", m.Type, "message", m.Text)
	return map[string]any{"success": true}, nil
}

type chunkParam struct {
	UploadID   string `json:"uploadId"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkCount int    `json:"chunkCount"`
	Data       string `json:"data"`
}

// uploadChunk collects chunks until every index of an upload arrived,
// then assembles the file.
func (b *builtins) uploadChunk(_ context.Context, parameter string) (any, error) {
	var p chunkParam
	if err := decodeParam(parameter, &p); err != nil {
		return nil, err
	}
	if p.UploadID == "" || p.FileName == "" {
		return nil, errors.New("uploadId and fileName are required")
	}
	if p.ChunkCount < 1 || p.ChunkIndex < 0 || p.ChunkIndex >= p.ChunkCount {
		return nil, fmt.Errorf("chunk %d out of range for %d chunks", p.ChunkIndex, p.ChunkCount)
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", p.ChunkIndex, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.uploads[p.UploadID]
	if st == nil {
		st = &uploadState{
			fileName:   p.FileName,
			mimeType:   p.MimeType,
			size:       p.Size,
			chunkCount: p.ChunkCount,
			chunks:     make(map[int][]byte, p.ChunkCount),
		}
		b.uploads[p.UploadID] = st
	}
	if st.chunkCount != p.ChunkCount || st.fileName != p.FileName {
		return nil, fmt.Errorf("upload %s: chunk %d does not match earlier chunks", p.UploadID, p.ChunkIndex)
	}
	st.chunks[p.ChunkIndex] = data

	if len(st.chunks) < st.chunkCount {
		return map[string]any{
			"success":  true,
			"complete": false,
			"received": len(st.chunks),
		}, nil
	}

	delete(b.uploads, p.UploadID)
	var file []byte
	for i := 0; i < st.chunkCount; i++ {
		file = append(file, st.chunks[i]...)
	}
	if int64(len(file)) != st.size {
		return nil, fmt.Errorf("upload %s: assembled %d bytes, expected %d", p.UploadID, len(file), st.size)
	}
	b.files[st.fileName] = file

	result := map[string]any{
		"success":  true,
		"complete": true,
		"fileName": st.fileName,
		"mimeType": st.mimeType,
		"size":     st.size,
	}
	if b.uploadDir != "" {
		path := filepath.Join(b.uploadDir, filepath.Base(st.fileName))
		if err := os.WriteFile(path, file, 0o644); err != nil {
			return nil, err
		}
		result["path"] = path
	}

	b.logger.Info("Upload complete", "file", st.fileName, "size", upload.FormatBytes(st.size))
	return result, nil
}

func (b *builtins) testConnection(context.Context, string) (any, error) {
	return map[string]any{
		"success": true,
		"host":    "fmbridge devhost",
		"version": b.version,
	}, nil
}

func (b *builtins) messageLog() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.messages...)
}

func (b *builtins) file(name string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[name]
	return data, ok
}
