package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by the release pipeline.
var version = "dev"

var (
	flagDeploy     bool
	flagUpdate     bool
	flagFullBackup bool
	flagZip        bool
	flagYes        bool
	flagOpen       bool
)

var rootCmd = &cobra.Command{
	Use:   "relsync",
	Short: "Git release workflow automation",
	Long: `relsync automates a two-branch git release workflow: it tracks the project
version from the manifest, produces dated zip backups, regenerates the
changelog from commit history, and synchronizes the development branch with
the release branch using an orphan flatten + whitelist strategy.

With no operation flag it commits and pushes pending changes on the
development branch.`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&flagDeploy, "deploy", false, "Flattened release: force-push the whitelisted tree onto the release branch")
	rootCmd.Flags().BoolVar(&flagUpdate, "update", false, "Incremental release update without rewriting history")
	rootCmd.Flags().BoolVar(&flagFullBackup, "full-backup", false, "Full zip backup into the parent directory")
	rootCmd.Flags().BoolVar(&flagZip, "zip", false, "Whitelist-filtered zip into the project root")
	rootCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "Suppress prompts and auto-generate commit messages")
	rootCmd.Flags().BoolVarP(&flagOpen, "open", "o", false, "Open the day's session log when the operation completes")
	rootCmd.MarkFlagsMutuallyExclusive("deploy", "update", "full-backup", "zip")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("relsync %s\n", version)
	},
}
