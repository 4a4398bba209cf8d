package upload

import (
	"errors"
	"log/slog"
)

type options struct {
	script       string
	chunkSize    int
	maxFileSize  int64
	logger       *slog.Logger
	progressFunc progressFunc
	completeFunc completeFunc
}

func (o *options) fileComplete(f File, res Result) {
	if o.completeFunc != nil {
		o.completeFunc(f, res, res.Err)
	}
}

type Option interface {
	setOption(*options) error
}

type scriptOption struct {
	script string
}

func (o scriptOption) setOption(opts *options) error {
	if o.script == "" {
		return errors.New("upload script name must not be empty")
	}
	opts.script = o.script
	return nil
}

// WithScript overrides DefaultScript.
func WithScript(name string) Option {
	return scriptOption{script: name}
}

type chunkSizeOption struct {
	size int
}

func (o chunkSizeOption) setOption(opts *options) error {
	if o.size <= 0 {
		return errors.New("chunk size must be positive")
	}
	opts.chunkSize = o.size
	return nil
}

// WithChunkSize sets the raw bytes per chunk.
func WithChunkSize(size int) Option {
	return chunkSizeOption{size: size}
}

type maxFileSizeOption struct {
	size int64
}

func (o maxFileSizeOption) setOption(opts *options) error {
	opts.maxFileSize = o.size
	return nil
}

// WithMaxFileSize rejects files larger than size bytes with
// ErrFileTooLarge. Zero disables the check.
func WithMaxFileSize(size int64) Option {
	return maxFileSizeOption{size: size}
}

type loggerOption struct {
	logger *slog.Logger
}

func (o loggerOption) setOption(opts *options) error {
	if o.logger != nil {
		opts.logger = o.logger
	}
	return nil
}

func WithLogger(logger *slog.Logger) Option {
	return loggerOption{logger: logger}
}

type progressFunc func(f File, sentBytes, totalBytes int64)

type progressOption struct {
	progressFunc progressFunc
}

func (o progressOption) setOption(opts *options) error {
	opts.progressFunc = o.progressFunc
	return nil
}

// OnProgress returns an Option to track the progress of each file. It
// takes a callback that is called after every chunk the host accepted.
func OnProgress(f func(file File, sentBytes, totalBytes int64)) Option {
	return progressOption{f}
}

type completeFunc func(f File, res Result, err error)

type completeOption struct {
	completeFunc completeFunc
}

func (o completeOption) setOption(opts *options) error {
	opts.completeFunc = o.completeFunc
	return nil
}

// OnFileComplete returns an Option that is called once per file with its
// result and error, whether the upload succeeded or not.
func OnFileComplete(f func(file File, res Result, err error)) Option {
	return completeOption{f}
}
