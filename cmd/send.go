package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/fmbridge/fmbridge/config"
	"github.com/fmbridge/fmbridge/upload"
)

var (
	hideProgressBar bool
	chunkSizeFlag   int
)

func sendCommand() *cobra.Command {
	cmd := cobra.Command{
		Use:   "send FILE...",
		Short: "Upload files to a FileMaker upload script...",
		Long: `Upload files to the upload script of a running development host, in
base64 chunks. Directories are sent file by file.`,
		Args: cobra.MinimumNArgs(1),
		Run:  sendAction,
	}

	cmd.Flags().StringVar(&hostFlag, "host", "", "development host address (default from devHost.addr)")
	cmd.Flags().IntVar(&chunkSizeFlag, "chunk-size", 0, "raw bytes per chunk (default from upload.chunkSize)")
	cmd.Flags().BoolVar(&hideProgressBar, "hide-progress", false, "suppress progress-bar display")

	return &cmd
}

func sendAction(cmd *cobra.Command, args []string) {
	var files []upload.File
	for _, arg := range args {
		fs, err := collectFiles(arg)
		if err != nil {
			bail("Failed to read %s: %s", arg, err)
		}
		files = append(files, fs...)
	}
	if len(files) == 0 {
		bail("No files to send")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b, closeHost, err := connectHost(ctx)
	if err != nil {
		bail("%s", err)
	}
	defer closeHost()

	chunkSize := cfg.Upload.ChunkSize
	if chunkSizeFlag > 0 {
		chunkSize = chunkSizeFlag
	}

	uploader, err := upload.New(b,
		upload.WithScript(cfg.Script(config.ScriptUpload, upload.DefaultScript)),
		upload.WithChunkSize(chunkSize),
		upload.WithMaxFileSize(cfg.Upload.MaxFileSize),
		upload.WithLogger(log.With("component", "upload")),
	)
	if err != nil {
		bail("%s", err)
	}

	var bar *pb.ProgressBar
	opts := []upload.Option{
		upload.OnFileComplete(func(f upload.File, res upload.Result, err error) {
			if bar != nil {
				bar.Finish()
				bar = nil
			}
			if err != nil {
				errf("%s: %s", f.Name, err)
				return
			}
			fmt.Printf("%s sent (%s, %d chunks)\n", f.Name, upload.FormatBytes(res.Size), res.Chunks)
		}),
	}

	if !hideProgressBar {
		opts = append(opts, upload.OnProgress(func(f upload.File, sentBytes, totalBytes int64) {
			if bar == nil {
				bar = pb.Full.Start64(totalBytes)
				bar.Set(pb.Bytes, true)
				bar.Set("prefix", f.Name+" ")
			}
			bar.SetCurrent(sentBytes)
		}))
	}

	results, err := uploader.UploadFiles(ctx, files, opts...)
	if err != nil {
		bail("Send interrupted: %s", err)
	}

	var failed int
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		bail("%d of %d files failed", failed, len(results))
	}
}

// collectFiles returns path itself, or every regular file below it when
// path is a directory.
func collectFiles(path string) ([]upload.File, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		f, err := upload.FromPath(path)
		if err != nil {
			return nil, err
		}
		return []upload.File{f}, nil
	}

	var files []upload.File
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := upload.FromPath(p)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})
	return files, err
}
