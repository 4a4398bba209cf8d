// Package config loads widget.config.json, the read-only configuration
// shared by the bridge, the development host and the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmbridge/fmbridge/bridge"
	"github.com/fmbridge/fmbridge/internal"
)

const (
	// FileName is the config file looked up in the working directory.
	FileName = "widget.config.json"

	envConfig = "FMBRIDGE_CONFIG"
	envServer = "FMBRIDGE_SERVER"
	envFile   = "FMBRIDGE_FILE"
)

// Script keys understood in fileMaker.scripts.
const (
	ScriptInitialize  = "initialize"
	ScriptGetData     = "getData"
	ScriptSetData     = "setData"
	ScriptLog         = "log"
	ScriptShowMessage = "showMessage"
	ScriptUpload      = "upload"
)

// LayoutData is the fileMaker.layouts key of the layout widgets save to.
const LayoutData = "data"

// Config is the root widget configuration.
type Config struct {
	Widget    WidgetConfig    `json:"widget"`
	FileMaker FileMakerConfig `json:"fileMaker"`
	Data      DataConfig      `json:"data"`
	Upload    UploadConfig    `json:"upload"`
	DevHost   DevHostConfig   `json:"devHost"`
	Build     BuildConfig     `json:"build"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

type WidgetConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// FileMakerConfig describes the FileMaker file a widget talks to.
type FileMakerConfig struct {
	// Server may carry an http:// or https:// prefix for remote hosts.
	Server        string            `json:"server"`
	File          string            `json:"file"`
	UploadScript  string            `json:"uploadScript"`
	LoadScript    string            `json:"loadScript,omitempty"`
	Scripts       map[string]string `json:"scripts,omitempty"`
	Layouts       map[string]string `json:"layouts,omitempty"`
	TimeoutMs     int               `json:"timeoutMs"`
	RetryAttempts int               `json:"retryAttempts"`
	EnableLogging bool              `json:"enableLogging"`
}

type DataConfig struct {
	AutoSave bool `json:"autoSave"`
	// AutoSaveInterval is the debounce delay in milliseconds.
	AutoSaveInterval int  `json:"autoSaveInterval"`
	ValidateOnSave   bool `json:"validateOnSave"`
}

type UploadConfig struct {
	// MaxFileSize in bytes; 0 means unlimited.
	MaxFileSize int64 `json:"maxFileSize"`
	ChunkSize   int   `json:"chunkSize"`
}

type DevHostConfig struct {
	Addr        string `json:"addr"`
	WidgetDir   string `json:"widgetDir"`
	ScriptsFile string `json:"scriptsFile,omitempty"`
}

type BuildConfig struct {
	OutputDir string `json:"outputDir"`
	MainFile  string `json:"mainFile"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"addSource,omitempty"`
}

// Default returns the configuration the widget template ships with.
func Default() *Config {
	names := bridge.DefaultScriptNames()
	return &Config{
		Widget: WidgetConfig{
			Name:        "FMbridge Template",
			Version:     "1.0.0",
			Description: "Template for FileMaker webviewer apps",
		},
		FileMaker: FileMakerConfig{
			Server:       "localhost",
			File:         "WebWidgets.fmp12",
			UploadScript: "Import Web Widget",
			LoadScript:   "Load_Widget_Data",
			Scripts: map[string]string{
				ScriptGetData:     names.GetData,
				ScriptSetData:     names.SetData,
				ScriptLog:         names.Log,
				ScriptShowMessage: names.ShowMessage,
				ScriptUpload:      "Upload Web File",
			},
			Layouts: map[string]string{
				LayoutData: "Widget Data",
			},
			TimeoutMs:     int(bridge.DefaultTimeout / time.Millisecond),
			RetryAttempts: 0,
			EnableLogging: true,
		},
		Data: DataConfig{
			AutoSave:         false,
			AutoSaveInterval: 2000,
			ValidateOnSave:   true,
		},
		Upload: UploadConfig{
			MaxFileSize: 10 << 20,
			ChunkSize:   512 << 10,
		},
		DevHost: DevHostConfig{
			Addr:      "localhost:8080",
			WidgetDir: "dist",
		},
		Build: BuildConfig{
			OutputDir: "dist",
			MainFile:  "index.html",
		},
	}
}

// Load resolves the active config file and reads it. Without a config
// file it returns Default with environment overrides applied.
//
// Precedence is FMBRIDGE_CONFIG first, then widget.config.json in the
// working directory.
func Load() (*Config, error) {
	path, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the config file at path. Fields missing from the
// file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if server := strings.TrimSpace(os.Getenv(envServer)); server != "" {
		cfg.FileMaker.Server = server
	}
	if file := strings.TrimSpace(os.Getenv(envFile)); file != "" {
		cfg.FileMaker.File = file
	}
}

// findConfigPath returns "" when no config file exists and none was
// requested explicitly.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfig)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfig, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidate := filepath.Join(cwd, FileName)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, nil
	}
	return "", nil
}

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Widget.Name) == "" {
		errs = append(errs, errors.New("widget.name is required"))
	}
	if strings.TrimSpace(c.FileMaker.Server) == "" {
		errs = append(errs, errors.New("fileMaker.server is required"))
	} else if _, err := internal.NormalizeServer(c.FileMaker.Server); err != nil {
		errs = append(errs, fmt.Errorf("fileMaker.server: %w", err))
	}
	if strings.TrimSpace(c.FileMaker.File) == "" {
		errs = append(errs, errors.New("fileMaker.file is required"))
	}
	if c.FileMaker.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("fileMaker.timeoutMs must not be negative, got %d", c.FileMaker.TimeoutMs))
	}
	if c.FileMaker.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("fileMaker.retryAttempts must not be negative, got %d", c.FileMaker.RetryAttempts))
	}
	if c.Data.AutoSave && c.Data.AutoSaveInterval <= 0 {
		errs = append(errs, errors.New("data.autoSaveInterval must be positive when autoSave is enabled"))
	}
	if c.Upload.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("upload.chunkSize must be positive, got %d", c.Upload.ChunkSize))
	}
	if c.Upload.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("upload.maxFileSize must not be negative, got %d", c.Upload.MaxFileSize))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Timeout is fileMaker.timeoutMs as a duration. Zero means the bridge
// default.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.FileMaker.TimeoutMs) * time.Millisecond
}

func (c *Config) AutoSaveInterval() time.Duration {
	return time.Duration(c.Data.AutoSaveInterval) * time.Millisecond
}

// Script returns the script configured under key, or fallback.
func (c *Config) Script(key, fallback string) string {
	if name := c.FileMaker.Scripts[key]; name != "" {
		return name
	}
	return fallback
}

// Layout returns the layout configured under key, or fallback.
func (c *Config) Layout(key, fallback string) string {
	if name := c.FileMaker.Layouts[key]; name != "" {
		return name
	}
	return fallback
}

// ScriptNames returns the bridge convenience script names. Keys not set
// in fileMaker.scripts keep the bridge defaults.
func (c *Config) ScriptNames() bridge.ScriptNames {
	return bridge.ScriptNames{
		GetData:     c.FileMaker.Scripts[ScriptGetData],
		SetData:     c.FileMaker.Scripts[ScriptSetData],
		Log:         c.FileMaker.Scripts[ScriptLog],
		ShowMessage: c.FileMaker.Scripts[ScriptShowMessage],
	}
}

// BuildPath is the main file inside the build output directory.
func (c *Config) BuildPath() string {
	return filepath.Join(c.Build.OutputDir, c.Build.MainFile)
}

// Merge returns a copy of base with every non-zero field of override
// applied. Maps are merged key by key. Booleans can only be switched on.
func Merge(base, override *Config) *Config {
	out := *base
	out.FileMaker.Scripts = mergeMap(base.FileMaker.Scripts, nil)
	out.FileMaker.Layouts = mergeMap(base.FileMaker.Layouts, nil)
	if override == nil {
		return &out
	}

	setString(&out.Widget.Name, override.Widget.Name)
	setString(&out.Widget.Version, override.Widget.Version)
	setString(&out.Widget.Description, override.Widget.Description)

	fm := override.FileMaker
	setString(&out.FileMaker.Server, fm.Server)
	setString(&out.FileMaker.File, fm.File)
	setString(&out.FileMaker.UploadScript, fm.UploadScript)
	setString(&out.FileMaker.LoadScript, fm.LoadScript)
	out.FileMaker.Scripts = mergeMap(out.FileMaker.Scripts, fm.Scripts)
	out.FileMaker.Layouts = mergeMap(out.FileMaker.Layouts, fm.Layouts)
	setInt(&out.FileMaker.TimeoutMs, fm.TimeoutMs)
	setInt(&out.FileMaker.RetryAttempts, fm.RetryAttempts)
	out.FileMaker.EnableLogging = out.FileMaker.EnableLogging || fm.EnableLogging

	out.Data.AutoSave = out.Data.AutoSave || override.Data.AutoSave
	setInt(&out.Data.AutoSaveInterval, override.Data.AutoSaveInterval)
	out.Data.ValidateOnSave = out.Data.ValidateOnSave || override.Data.ValidateOnSave

	if override.Upload.MaxFileSize != 0 {
		out.Upload.MaxFileSize = override.Upload.MaxFileSize
	}
	setInt(&out.Upload.ChunkSize, override.Upload.ChunkSize)

	setString(&out.DevHost.Addr, override.DevHost.Addr)
	setString(&out.DevHost.WidgetDir, override.DevHost.WidgetDir)
	setString(&out.DevHost.ScriptsFile, override.DevHost.ScriptsFile)

	setString(&out.Build.OutputDir, override.Build.OutputDir)
	setString(&out.Build.MainFile, override.Build.MainFile)

	setString(&out.Logging.Format, override.Logging.Format)
	setString(&out.Logging.Level, override.Logging.Level)
	out.Logging.AddSource = out.Logging.AddSource || override.Logging.AddSource

	return &out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeMap(base, override map[string]string) map[string]string {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
