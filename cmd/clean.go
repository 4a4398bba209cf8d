package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmbridge/fmbridge/launch"
)

func cleanCommand() *cobra.Command {
	cmd := cobra.Command{
		Use:   "clean [DIR]",
		Short: "Prune build output to " + strings.Join(launch.BuildFiles, ", "),
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := cfg.Build.OutputDir
			if len(args) > 0 {
				dir = args[0]
			}

			removed, err := launch.PruneBuild(dir)
			for _, p := range removed {
				fmt.Printf("Removed: %s\n", p)
			}
			if err != nil {
				bail("Clean %s failed: %s", dir, err)
			}
		},
	}

	return &cmd
}
