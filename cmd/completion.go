package cmd

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmbridge/fmbridge/config"
)

func completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell-completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `To load completions:

Bash:

  $ source <(fmbridge shell-completion bash)

  # To configure your bash shell to load completions for each session add to your bashrc

# ~/.bashrc or ~/.profile
if which fmbridge &>/dev/null ; then
  . <(fmbridge shell-completion bash)
fi

Zsh:

  # If shell completion is not already enabled in your environment,
  # you will need to enable it.  You can execute the following once:

  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ fmbridge shell-completion zsh > "${fpath[1]}/_fmbridge"

  # You will need to start a new shell for this setup to take effect.

fish:

  $ fmbridge shell-completion fish | source

  # To load completions for each session, execute once:
  $ fmbridge shell-completion fish > ~/.config/fish/completions/fmbridge.fish

PowerShell:

  PS> fmbridge shell-completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> fmbridge shell-completion powershell > fmbridge.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		// completion scripts do not depend on widget.config.json
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		Args:              cobra.ExactValidArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
		},
	}

	return cmd
}

// scriptNameCompletion offers the script names the configuration knows
// about for the first argument of call.
func scriptNameCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	flags := cobra.ShellCompDirectiveNoFileComp
	if len(args) > 0 {
		return nil, flags
	}
	c := cfg
	if c == nil {
		c = config.Default()
	}
	return scriptCandidates(c, toComplete), flags
}

func scriptCandidates(c *config.Config, toComplete string) []string {
	names := map[string]bool{"Test Connection": true}
	for _, name := range c.FileMaker.Scripts {
		names[name] = true
	}
	names[c.FileMaker.UploadScript] = true
	names[c.FileMaker.LoadScript] = true

	var candidates []string
	for name := range names {
		if name != "" && strings.HasPrefix(name, toComplete) {
			candidates = append(candidates, name)
		}
	}
	sort.Strings(candidates)
	return candidates
}
