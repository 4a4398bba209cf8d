package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	mu     sync.Mutex
	script string
	chunks []chunk
	failOn string
}

func (c *fakeCaller) CallScript(ctx context.Context, scriptName, parameter string) (json.RawMessage, error) {
	var ch chunk
	if err := json.Unmarshal([]byte(parameter), &ch); err != nil {
		return nil, err
	}
	if ch.FileName == c.failOn {
		return nil, errors.New("FileMaker script call timeout")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = scriptName
	c.chunks = append(c.chunks, ch)
	return json.RawMessage(`{"received":` + itoa(ch.ChunkIndex) + `}`), nil
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func memFile(name string, data []byte) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func reassemble(t *testing.T, chunks []chunk, uploadID string) []byte {
	t.Helper()
	var out []byte
	for _, ch := range chunks {
		if ch.UploadID != uploadID {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(ch.Data)
		require.NoError(t, err)
		out = append(out, data...)
	}
	return out
}

func TestUploadFilesChunksAndReassembles(t *testing.T) {
	caller := &fakeCaller{}
	u, err := New(caller, WithChunkSize(4))
	require.NoError(t, err)

	payload := []byte("hello, filemaker")
	var progress []int64
	results, err := u.UploadFiles(context.Background(), []File{memFile("notes.json", payload)},
		OnProgress(func(f File, sent, total int64) {
			assert.Equal(t, int64(len(payload)), total)
			progress = append(progress, sent)
		}),
	)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Chunks)
	assert.JSONEq(t, `{"received":3}`, string(res.Response))
	assert.Equal(t, []int64{4, 8, 12, 16}, progress)

	assert.Equal(t, DefaultScript, caller.script)
	require.Len(t, caller.chunks, 4)
	for i, ch := range caller.chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, 4, ch.ChunkCount)
		assert.Equal(t, "notes.json", ch.FileName)
		assert.Equal(t, "application/json", ch.MimeType)
		assert.Equal(t, int64(len(payload)), ch.Size)
	}
	assert.Equal(t, payload, reassemble(t, caller.chunks, res.UploadID))
}

func TestUploadFilesOneResultPerFile(t *testing.T) {
	caller := &fakeCaller{failOn: "broken.bin"}
	u, err := New(caller, WithMaxFileSize(10))
	require.NoError(t, err)

	files := []File{
		memFile("a.json", []byte(`{"a":1}`)),
		memFile("huge.bin", bytes.Repeat([]byte{1}, 11)),
		memFile("broken.bin", []byte{1, 2}),
		memFile("empty.txt", nil),
	}

	var completed []string
	results, err := u.UploadFiles(context.Background(), files,
		OnFileComplete(func(f File, res Result, err error) {
			completed = append(completed, f.Name)
			assert.Equal(t, res.Err, err)
		}),
	)
	require.NoError(t, err)
	require.Len(t, results, len(files))
	assert.Equal(t, []string{"a.json", "huge.bin", "broken.bin", "empty.txt"}, completed)

	assert.True(t, results[0].Success)

	assert.False(t, results[1].Success)
	assert.ErrorIs(t, results[1].Err, ErrFileTooLarge)

	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Err.Error(), "chunk 1/1")

	assert.True(t, results[3].Success)
	assert.Equal(t, 1, results[3].Chunks)

	for _, ch := range caller.chunks {
		assert.NotEqual(t, "huge.bin", ch.FileName, "oversized files must not be dispatched")
	}
	assert.NotEqual(t, results[0].UploadID, results[3].UploadID)
}

func TestUploadFilesCancelled(t *testing.T) {
	caller := &fakeCaller{}
	u, err := New(caller)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var completions int
	results, err := u.UploadFiles(ctx, []File{memFile("a", []byte("a")), memFile("b", []byte("b"))},
		OnFileComplete(func(f File, res Result, err error) {
			completions++
			cancel()
		}),
	)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
	assert.Equal(t, 2, completions)
}

func TestFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(path, []byte("not really a png"), 0o600))

	f, err := FromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "logo.png", f.Name)
	assert.Equal(t, "image/png", f.MimeType)
	assert.Equal(t, int64(16), f.Size)

	caller := &fakeCaller{}
	u, err := New(caller)
	require.NoError(t, err)
	res, err := u.UploadFile(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []byte("not really a png"), reassemble(t, caller.chunks, res.UploadID))

	_, err = FromPath(dir)
	assert.Error(t, err)
	_, err = FromPath(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInvalidOptions(t *testing.T) {
	_, err := New(&fakeCaller{}, WithChunkSize(0))
	assert.Error(t, err)
	_, err = New(&fakeCaller{}, WithScript(""))
	assert.Error(t, err)
}

func TestChunkCount(t *testing.T) {
	assert.Equal(t, 1, ChunkCount(0, 4))
	assert.Equal(t, 1, ChunkCount(4, 4))
	assert.Equal(t, 2, ChunkCount(5, 4))
	assert.Equal(t, 3, ChunkCount(DefaultChunkSize*2+1, DefaultChunkSize))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 Bytes", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "10.00 MB", FormatBytes(10<<20))
}
