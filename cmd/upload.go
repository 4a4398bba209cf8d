package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fmbridge/fmbridge/launch"
)

var (
	printURLOnly bool

	openURL launch.Opener = launch.Open
)

func uploadCommand() *cobra.Command {
	cmd := cobra.Command{
		Use:   "upload",
		Short: "Import the built widget into FileMaker Pro",
		Long: `Open an fmp:// URL that runs the configured import script with the
path of the built widget (build.outputDir/build.mainFile).`,
		Args: cobra.NoArgs,
		Run:  uploadAction,
	}

	cmd.Flags().BoolVar(&printURLOnly, "print", false, "print the fmp:// URL instead of opening it")

	return &cmd
}

func uploadAction(cmd *cobra.Command, args []string) {
	params, err := launch.NewImportParams(cfg.Widget.Name, cfg.Widget.Version, cfg.BuildPath(), time.Now())
	if err != nil {
		bail("%s (run the widget build first)", err)
	}

	fmURL, err := launch.URL(cfg.FileMaker.Server, cfg.FileMaker.File, cfg.FileMaker.UploadScript, params)
	if err != nil {
		bail("Bad FileMaker settings: %s", err)
	}

	if printURLOnly {
		fmt.Println(fmURL)
		return
	}

	log.Info("opening FileMaker", "file", cfg.FileMaker.File, "script", cfg.FileMaker.UploadScript, "path", params.ThePath)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := openURL(ctx, fmURL); err != nil {
		bail("Failed to open FileMaker: %s", err)
	}
	fmt.Printf("Sent %s to %s\n", params.WidgetName, cfg.FileMaker.File)
}
