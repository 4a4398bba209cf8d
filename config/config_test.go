package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmbridge/fmbridge/bridge"
)

func TestLoadFromPathKeepsDefaults(t *testing.T) {
	unsetConfigEnv(t)

	path := writeConfig(t, t.TempDir(), `{
		"widget": {"name": "Invoices", "version": "2.1.0"},
		"fileMaker": {
			"server": "https://fms.example.com",
			"scripts": {"getData": "Load Invoice"},
			"timeoutMs": 5000
		},
		"data": {"autoSave": true, "autoSaveInterval": 750}
	}`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "Invoices", cfg.Widget.Name)
	assert.Equal(t, "https://fms.example.com", cfg.FileMaker.Server)
	assert.Equal(t, "WebWidgets.fmp12", cfg.FileMaker.File)
	assert.Equal(t, "Import Web Widget", cfg.FileMaker.UploadScript)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, 750*time.Millisecond, cfg.AutoSaveInterval())
	assert.True(t, cfg.Data.AutoSave)
	assert.Equal(t, 512<<10, cfg.Upload.ChunkSize)

	names := cfg.ScriptNames()
	assert.Equal(t, "Load Invoice", names.GetData)

	// json.Unmarshal merges into the default map, so unnamed keys survive
	assert.Equal(t, "Set Web Data", names.SetData)
	assert.Equal(t, "Upload Web File", cfg.Script(ScriptUpload, ""))
	assert.Equal(t, "fallback", cfg.Script("missing", "fallback"))
	assert.Equal(t, "Widget Data", cfg.Layout(LayoutData, ""))

	require.NoError(t, cfg.Validate())
}

func TestLoadFromPathErrors(t *testing.T) {
	unsetConfigEnv(t)

	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")

	path := writeConfig(t, t.TempDir(), `{"widget": `)
	_, err = LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoadPrecedence(t *testing.T) {
	unsetConfigEnv(t)

	cwd := t.TempDir()
	chdir(t, cwd)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	writeConfig(t, cwd, `{"widget": {"name": "From CWD"}}`)
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "From CWD", cfg.Widget.Name)

	explicit := writeConfig(t, t.TempDir(), `{"widget": {"name": "From Env"}}`)
	t.Setenv(envConfig, explicit)
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "From Env", cfg.Widget.Name)

	t.Setenv(envConfig, filepath.Join(cwd, "nope.json"))
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), envConfig)
}

func TestEnvironmentOverrides(t *testing.T) {
	unsetConfigEnv(t)
	chdir(t, t.TempDir())

	t.Setenv(envServer, "fms.internal")
	t.Setenv(envFile, "Sales.fmp12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fms.internal", cfg.FileMaker.Server)
	assert.Equal(t, "Sales.fmp12", cfg.FileMaker.File)
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Widget.Name = ""
	cfg.FileMaker.Server = "fmp://bad/server"
	cfg.FileMaker.File = " "
	cfg.FileMaker.TimeoutMs = -1
	cfg.Data.AutoSave = true
	cfg.Data.AutoSaveInterval = 0
	cfg.Upload.ChunkSize = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"widget.name is required",
		"fileMaker.server",
		"fileMaker.file is required",
		"fileMaker.timeoutMs",
		"data.autoSaveInterval",
		"upload.chunkSize",
		"logging.format",
	} {
		assert.Contains(t, msg, want)
	}

	require.NoError(t, Default().Validate())
}

func TestMerge(t *testing.T) {
	base := Default()
	override := &Config{
		FileMaker: FileMakerConfig{
			Server:  "fms.example.com",
			Scripts: map[string]string{ScriptLog: "Write Log"},
		},
		Data:    DataConfig{AutoSave: true},
		Upload:  UploadConfig{ChunkSize: 1024},
		Logging: LoggingConfig{Level: "debug"},
	}

	merged := Merge(base, override)

	assert.Equal(t, "fms.example.com", merged.FileMaker.Server)
	assert.Equal(t, "WebWidgets.fmp12", merged.FileMaker.File)
	assert.Equal(t, "Write Log", merged.FileMaker.Scripts[ScriptLog])
	assert.Equal(t, "Get Web Data", merged.FileMaker.Scripts[ScriptGetData])
	assert.True(t, merged.Data.AutoSave)
	assert.Equal(t, 2000, merged.Data.AutoSaveInterval)
	assert.Equal(t, 1024, merged.Upload.ChunkSize)
	assert.Equal(t, "debug", merged.Logging.Level)

	// base is never mutated
	assert.Equal(t, "localhost", base.FileMaker.Server)
	assert.Equal(t, "Log Web Message", base.FileMaker.Scripts[ScriptLog])

	assert.Equal(t, base, Merge(base, nil))
}

func TestDefaultScriptNamesMatchBridge(t *testing.T) {
	assert.Equal(t, bridge.DefaultScriptNames(), Default().ScriptNames())
	assert.Equal(t, bridge.DefaultTimeout, Default().Timeout())
	assert.Equal(t, filepath.Join("dist", "index.html"), Default().BuildPath())
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func unsetConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envConfig, envServer, envFile} {
		t.Setenv(key, "")
	}
}
