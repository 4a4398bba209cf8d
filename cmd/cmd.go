package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmbridge/fmbridge/config"
	"github.com/fmbridge/fmbridge/logger"
	"github.com/fmbridge/fmbridge/version"
)

var (
	configPath string
	logFormat  string
	logLevel   string

	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fmbridge",
	Short: "Develop and ship FileMaker WebViewer widgets.",
	Long: `Develop and ship FileMaker WebViewer widgets.

  fmbridge serves a widget against an emulated FileMaker host, calls
  scripts on it, uploads files through it, and hands finished builds to
  FileMaker Pro.`,
	Version:           version.AgentVersion,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// flags win over the file
	cfg = config.Merge(cfg, &config.Config{
		Logging: config.LoggingConfig{Format: logFormat, Level: logLevel},
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err = logger.NewWithWriter(cfg.Logging, os.Stderr)
	return err
}

func Execute() error {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(callCommand())
	rootCmd.AddCommand(sendCommand())
	rootCmd.AddCommand(uploadCommand())
	rootCmd.AddCommand(cleanCommand())
	rootCmd.AddCommand(completionCommand())
	return rootCmd.Execute()
}

func errf(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, msg, args...)
	if !strings.HasSuffix(msg, "\n") {
		fmt.Fprint(os.Stderr, "\n")
	}
}

func bail(msg string, args ...interface{}) {
	errf(msg, args...)
	os.Exit(1)
}
