package devhost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmbridge/fmbridge/bridge"
)

func newTestBuiltins(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	newBuiltins(discardLogger(), "", "test").register(r, bridge.DefaultScriptNames(), "Upload Web File")
	return r
}

func call(t *testing.T, r *Registry, name string, param any) (any, error) {
	t.Helper()
	script, ok := r.Lookup(name)
	require.True(t, ok, name)

	var raw string
	switch p := param.(type) {
	case string:
		raw = p
	default:
		b, err := json.Marshal(p)
		require.NoError(t, err)
		raw = string(b)
	}
	return script(context.Background(), raw)
}

func TestRegistryNames(t *testing.T) {
	r := newTestBuiltins(t)
	assert.Equal(t, []string{
		"Get Web Data",
		"Log Web Message",
		"Set Web Data",
		"Show Web Message",
		"Test Connection",
		"Upload Web File",
	}, r.Names())
}

func TestSetDataUpdatesExistingRecord(t *testing.T) {
	r := newTestBuiltins(t)

	v, err := call(t, r, "Set Web Data", map[string]any{"layoutName": "Tasks", "data": map[string]any{"title": "a"}})
	require.NoError(t, err)
	assert.Equal(t, "1", v.(map[string]any)["recordId"])

	_, err = call(t, r, "Set Web Data", map[string]any{"layoutName": "Tasks", "data": map[string]any{"recordId": "1", "done": true}})
	require.NoError(t, err)

	v, err = call(t, r, "Get Web Data", map[string]any{"layoutName": "Tasks", "recordId": "1"})
	require.NoError(t, err)
	assert.Equal(t, Record{"recordId": "1", "title": "a", "done": true}, v.(map[string]any)["data"])

	_, err = call(t, r, "Get Web Data", map[string]any{"layoutName": "Tasks", "recordId": "9"})
	assert.EqualError(t, err, `record 9 not found on layout "Tasks"`)

	_, err = call(t, r, "Set Web Data", map[string]any{"data": map[string]any{}})
	assert.EqualError(t, err, "layoutName is required")

	_, err = call(t, r, "Get Web Data", "")
	assert.EqualError(t, err, "missing script parameter")

	_, err = call(t, r, "Get Web Data", "{oops")
	assert.ErrorContains(t, err, "invalid script parameter")
}

func TestUploadChunkAccounting(t *testing.T) {
	r := newTestBuiltins(t)

	chunk := func(idx int, data string) map[string]any {
		return map[string]any{
			"uploadId":   "u1",
			"fileName":   "a.txt",
			"mimeType":   "text/plain",
			"size":       6,
			"chunkIndex": idx,
			"chunkCount": 2,
			"data":       base64.StdEncoding.EncodeToString([]byte(data)),
		}
	}

	// chunks may arrive out of order
	v, err := call(t, r, "Upload Web File", chunk(1, "def"))
	require.NoError(t, err)
	assert.Equal(t, false, v.(map[string]any)["complete"])

	v, err = call(t, r, "Upload Web File", chunk(0, "abc"))
	require.NoError(t, err)
	assert.Equal(t, true, v.(map[string]any)["complete"])
	assert.Equal(t, int64(6), v.(map[string]any)["size"])

	bad := chunk(2, "x")
	_, err = call(t, r, "Upload Web File", bad)
	assert.EqualError(t, err, "chunk 2 out of range for 2 chunks")

	bad = chunk(0, "x")
	bad["data"] = "%%%"
	_, err = call(t, r, "Upload Web File", bad)
	assert.ErrorContains(t, err, "chunk 0")

	short := chunk(0, "ab")
	short["uploadId"] = "u2"
	short["chunkCount"] = 1
	_, err = call(t, r, "Upload Web File", short)
	assert.EqualError(t, err, "upload u2: assembled 2 bytes, expected 6")
}

func TestLogAndShowMessage(t *testing.T) {
	b := newBuiltins(discardLogger(), "", "test")
	r := NewRegistry()
	b.register(r, bridge.DefaultScriptNames(), "Upload Web File")

	_, err := call(t, r, "Log Web Message", map[string]string{"message": "[t] WARN: x", "level": "warn"})
	require.NoError(t, err)

	_, err = call(t, r, "Show Web Message", map[string]string{"message": "Hello", "type": "warning"})
	require.NoError(t, err)
	assert.Equal(t, []Message{{Text: "Hello", Type: "warning"}}, b.messageLog())
}

func TestGetDataWhileSetDataWrites(t *testing.T) {
	srv, err := New(Options{})
	require.NoError(t, err)
	defer srv.Close()

	ctx := context.Background()
	_, err = srv.Call(ctx, "Set Web Data", `{"layoutName":"Tasks","data":{"title":"a"}}`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			param := fmt.Sprintf(`{"layoutName":"Tasks","data":{"recordId":"1","field%d":%d}}`, i, i)
			if _, err := srv.Call(ctx, "Set Web Data", param); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for _, param := range []string{
				`{"layoutName":"Tasks","recordId":"1"}`,
				`{"layoutName":"Tasks"}`,
			} {
				res, err := srv.Call(ctx, "Get Web Data", param)
				if err != nil {
					t.Error(err)
					return
				}
				// replies are encoded outside the script queue
				if _, err := json.Marshal(res); err != nil {
					t.Error(err)
					return
				}
			}
		}
	}()
	wg.Wait()

	res, err := srv.Call(ctx, "Get Web Data", `{"layoutName":"Tasks","recordId":"1"}`)
	require.NoError(t, err)
	// recordId, title and 200 fields
	assert.Len(t, res.(map[string]any)["data"], 202)
}
