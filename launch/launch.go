// Package launch hands a built widget to FileMaker by opening an fmp://
// URL that runs the import script.
package launch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/browser"

	"github.com/fmbridge/fmbridge/internal"
)

// ErrBuildNotFound is returned when the built widget is missing.
var ErrBuildNotFound = errors.New("build not found")

// ImportParams is the JSON parameter of the import script.
type ImportParams struct {
	WidgetName string `json:"widgetName"`
	ThePath    string `json:"thePath"`
	Timestamp  string `json:"timestamp"`
	Version    string `json:"version,omitempty"`
}

// NewImportParams describes the build at path. path is made absolute
// since FileMaker resolves it outside our working directory, and it must
// exist.
func NewImportParams(widgetName, version, path string, now time.Time) (ImportParams, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ImportParams{}, err
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return ImportParams{}, fmt.Errorf("%w at %s", ErrBuildNotFound, abs)
	}

	return ImportParams{
		WidgetName: widgetName,
		ThePath:    abs,
		Timestamp:  now.UTC().Format("2006-01-02T15:04:05.000Z"),
		Version:    version,
	}, nil
}

// URL returns fmp://<host>/<file>?script=<script>&param=<JSON>. An
// http:// or https:// prefix on server is dropped.
func URL(server, file, script string, params any) (string, error) {
	host, err := internal.NormalizeServer(server)
	if err != nil {
		return "", err
	}
	if file == "" {
		return "", errors.New("FileMaker file name is required")
	}
	if script == "" {
		return "", errors.New("FileMaker script name is required")
	}

	param, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("fmp://%s/%s?script=%s&param=%s",
		host,
		encodeURIComponent(file),
		encodeURIComponent(script),
		encodeURIComponent(string(param)),
	), nil
}

// encodeURIComponent escapes s the way browsers do, which is what
// FileMaker expects to decode: spaces become %20 and !'()* stay as is.
func encodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	return componentReplacer.Replace(escaped)
}

var componentReplacer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// Opener runs the platform URL handler.
type Opener func(ctx context.Context, rawURL string) error

// Open hands rawURL to the operating system URL handler, which starts
// FileMaker Pro for fmp:// URLs.
func Open(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := browser.OpenURL(rawURL); err != nil {
		return fmt.Errorf("open %s: %w", rawURL, err)
	}
	return nil
}
