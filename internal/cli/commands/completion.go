package commands

import (
	"github.com/spf13/cobra"
)

// NewCompletionCommand creates the completion command for shell completions
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for the crudkit CLI.

Bash:

  $ source <(crudkit completion bash)

Zsh:

  $ crudkit completion zsh > "${fpath[1]}/_crudkit"

Fish:

  $ crudkit completion fish | source

PowerShell:

  PS> crudkit completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return root.GenBashCompletion(out)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

// completeSortColumns offers the values --sort accepts
func completeSortColumns(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return sortColumns, cobra.ShellCompDirectiveNoFileComp
}
