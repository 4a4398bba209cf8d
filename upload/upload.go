// Package upload streams local files to a FileMaker upload script in
// base64 chunks over a bridge.
package upload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	// DefaultScript is the FileMaker script that receives chunks.
	DefaultScript = "Upload Web File"

	// DefaultChunkSize is the raw size of a chunk before base64 encoding.
	DefaultChunkSize = 512 << 10

	defaultMimeType = "application/octet-stream"
)

// ErrFileTooLarge is returned for files over the configured maximum.
// Such files are rejected before anything is sent.
var ErrFileTooLarge = errors.New("file exceeds maximum upload size")

// ScriptCaller runs a FileMaker script. *bridge.Bridge satisfies it.
type ScriptCaller interface {
	CallScript(ctx context.Context, scriptName, parameter string) (json.RawMessage, error)
}

// File is one upload source.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FromPath describes the file at path. The mime type is guessed from the
// extension.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	return File{
		Name:     filepath.Base(path),
		MimeType: mimeTypeFor(path),
		Size:     info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func mimeTypeFor(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return defaultMimeType
}

// Result is the outcome of one file upload.
type Result struct {
	FileName string
	UploadID string
	Size     int64
	Chunks   int
	Success  bool
	// Response is what the host answered to the final chunk.
	Response json.RawMessage
	Err      error
}

// chunk is the parameter the upload script receives for every chunk.
type chunk struct {
	UploadID   string `json:"uploadId"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkCount int    `json:"chunkCount"`
	Data       string `json:"data"`
}

// Uploader sends files through a ScriptCaller.
type Uploader struct {
	caller ScriptCaller
	opts   options
}

// New returns an Uploader. Options given here apply to every upload;
// options given to UploadFiles apply on top of them for that call.
func New(caller ScriptCaller, opts ...Option) (*Uploader, error) {
	u := &Uploader{
		caller: caller,
		opts: options{
			script:    DefaultScript,
			chunkSize: DefaultChunkSize,
			logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	}
	for _, opt := range opts {
		if err := opt.setOption(&u.opts); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// UploadFiles uploads files one after another. There is exactly one
// Result per file, in input order, and one OnFileComplete call per file.
// A failed file does not stop the rest; the returned error is only set
// when ctx ends before every file was attempted.
func (u *Uploader) UploadFiles(ctx context.Context, files []File, opts ...Option) ([]Result, error) {
	o := u.opts
	for _, opt := range opts {
		if err := opt.setOption(&o); err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(files); j++ {
				results[j] = Result{FileName: files[j].Name, Size: files[j].Size, Err: err}
				o.fileComplete(files[j], results[j])
			}
			return results, err
		}

		results[i] = u.upload(ctx, f, &o)
		o.fileComplete(f, results[i])
	}

	return results, nil
}

// UploadFile uploads a single file.
func (u *Uploader) UploadFile(ctx context.Context, f File, opts ...Option) (Result, error) {
	results, err := u.UploadFiles(ctx, []File{f}, opts...)
	if err != nil {
		return results[0], err
	}
	return results[0], results[0].Err
}

func (u *Uploader) upload(ctx context.Context, f File, o *options) Result {
	res := Result{
		FileName: f.Name,
		UploadID: uuid.NewString(),
		Size:     f.Size,
	}

	if o.maxFileSize > 0 && f.Size > o.maxFileSize {
		res.Err = fmt.Errorf("%s (%s, limit %s): %w", f.Name, FormatBytes(f.Size), FormatBytes(o.maxFileSize), ErrFileTooLarge)
		return res
	}
	if f.Open == nil {
		res.Err = fmt.Errorf("%s: no content", f.Name)
		return res
	}

	r, err := f.Open()
	if err != nil {
		res.Err = fmt.Errorf("open %s: %w", f.Name, err)
		return res
	}
	defer r.Close()

	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = mimeTypeFor(f.Name)
	}

	chunkCount := ChunkCount(f.Size, o.chunkSize)
	buf := make([]byte, o.chunkSize)

	var sent int64
	for idx := 0; idx < chunkCount; idx++ {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.ErrUnexpectedEOF && !(err == io.EOF && f.Size == 0) {
			res.Err = fmt.Errorf("read %s chunk %d: %w", f.Name, idx, err)
			return res
		}

		param, err := json.Marshal(chunk{
			UploadID:   res.UploadID,
			FileName:   f.Name,
			MimeType:   mimeType,
			Size:       f.Size,
			ChunkIndex: idx,
			ChunkCount: chunkCount,
			Data:       base64.StdEncoding.EncodeToString(buf[:n]),
		})
		if err != nil {
			res.Err = err
			return res
		}

		resp, err := u.caller.CallScript(ctx, o.script, string(param))
		if err != nil {
			res.Err = fmt.Errorf("upload %s chunk %d/%d: %w", f.Name, idx+1, chunkCount, err)
			return res
		}

		sent += int64(n)
		res.Chunks++
		res.Response = resp
		if o.progressFunc != nil {
			o.progressFunc(f, sent, f.Size)
		}
	}

	if sent != f.Size {
		res.Err = fmt.Errorf("%s: sent %d bytes, expected %d", f.Name, sent, f.Size)
		return res
	}

	o.logger.Debug("file uploaded",
		"file", f.Name,
		"upload_id", res.UploadID,
		"size", f.Size,
		"chunks", res.Chunks,
	)
	res.Success = true
	return res
}

// ChunkCount is the number of chunks a file of size bytes is split into.
// Empty files still take one (empty) chunk so the host sees them.
func ChunkCount(size int64, chunkSize int) int {
	if size <= 0 {
		return 1
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}

// FormatBytes renders n as a human readable size.
func FormatBytes(n int64) string {
	const (
		_  = iota
		KB = 1 << (10 * iota)
		MB
		GB
	)

	switch {
	case n >= GB:
		return fmt.Sprintf("%.2f GB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.2f MB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.2f KB", float64(n)/KB)
	default:
		return fmt.Sprintf("%d Bytes", n)
	}
}
