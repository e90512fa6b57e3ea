package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for scanview.

Bash:

  $ source <(scanview completion bash)

Zsh:

  $ scanview completion zsh > "${fpath[1]}/_scanview"

Fish:

  $ scanview completion fish | source

Scan ids complete from the configured catalog.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		default:
			return rootCmd.GenFishCompletion(os.Stdout, true)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)

	for _, cmd := range []*cobra.Command{viewCmd, orderCmd, measureCmd} {
		cmd.ValidArgsFunction = completeScanIDs
	}
}

// completeScanIDs offers the scan ids of the catalog for the first argument
func completeScanIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	b, err := newBackend(cfg)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	scans, err := b.catalog.Scans(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	ids := make([]string, 0, len(scans))
	for _, scan := range scans {
		ids = append(ids, scan.ID+"\t"+scan.PatientEmail)
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}
