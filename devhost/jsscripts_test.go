package devhost

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScripts = `
registerScript("Echo", function (parameter) {
  return { success: true, echo: parameter };
});

registerScript("Get Web Data", function (parameter) {
  var p = JSON.parse(parameter);
  return { success: true, data: [{ layout: p.layoutName, from: "js" }] };
});

registerScript("Later", function (parameter) {
  return new Promise(function (resolve) {
    setTimeout(function () { resolve({ success: true, later: parameter }); }, 10);
  });
});

registerScript("Reject", function () {
  return Promise.reject(new Error("record locked"));
});

registerScript("Throw", function () {
  throw new Error("script aborted");
});

registerScript("Never", function () {
  return new Promise(function () {});
});
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJSScripts(t *testing.T) {
	js, err := newJSScripts("scripts.js", testScripts, discardLogger())
	require.NoError(t, err)
	defer js.Close()

	ctx := context.Background()
	assert.Equal(t, []string{"Echo", "Get Web Data", "Later", "Never", "Reject", "Throw"}, js.Names())
	assert.True(t, js.Has("Echo"))

	v, err := js.Call(ctx, "Echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": true, "echo": "hi"}, v)

	v, err = js.Call(ctx, "Later", "soon")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": true, "later": "soon"}, v)

	_, err = js.Call(ctx, "Reject", "")
	assert.EqualError(t, err, "record locked")

	_, err = js.Call(ctx, "Throw", "")
	assert.EqualError(t, err, "script aborted")

	_, err = js.Call(ctx, "Missing", "")
	assert.ErrorIs(t, err, ErrUnknownScript)

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = js.Call(timeoutCtx, "Never", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJSScriptsLoadErrors(t *testing.T) {
	_, err := newJSScripts("bad.js", `registerScript("x", 42);`, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registerScript(name, fn)")

	_, err = newJSScripts("syntax.js", `registerScript(`, discardLogger())
	assert.Error(t, err)

	_, err = LoadJSScripts(filepath.Join(t.TempDir(), "missing.js"), discardLogger())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestJSScriptsOverrideBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scripts.js")
	require.NoError(t, os.WriteFile(path, []byte(testScripts), 0o600))

	host, err := New(Options{ScriptsFile: path})
	require.NoError(t, err)
	defer host.Close()

	v, err := host.Call(context.Background(), "Get Web Data", `{"layoutName":"Contacts"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"success": true,
		"data":    []any{map[string]any{"layout": "Contacts", "from": "js"}},
	}, v)

	// built-ins not overridden stay available
	_, err = host.Call(context.Background(), "Test Connection", "")
	require.NoError(t, err)
}
