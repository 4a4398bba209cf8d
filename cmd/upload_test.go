package cmd

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmbridge/fmbridge/config"
	"github.com/fmbridge/fmbridge/logger"
)

func TestUploadOpensImportURL(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("<html></html>"), 0666))

	cfg = config.Default()
	cfg.Build.OutputDir = dist
	cfg.FileMaker.Server = "https://fms.example.com"
	log = logger.Discard()

	var opened []string
	origOpen := openURL
	openURL = func(ctx context.Context, rawURL string) error {
		opened = append(opened, rawURL)
		return nil
	}
	t.Cleanup(func() {
		openURL = origOpen
		cfg = nil
		log = nil
	})

	uploadAction(uploadCommand(), nil)

	require.Len(t, opened, 1)
	prefix := "fmp://fms.example.com/WebWidgets.fmp12?script=Import%20Web%20Widget&param="
	require.True(t, strings.HasPrefix(opened[0], prefix), opened[0])

	param, err := url.PathUnescape(strings.TrimPrefix(opened[0], prefix))
	require.NoError(t, err)
	assert.Contains(t, param, `"widgetName":"FMbridge Template"`)
	assert.Contains(t, param, `index.html"`)
}
