package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relsync/relsync/internal/colors"
	"github.com/relsync/relsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get and set project settings",
	Long: `Get and set relsync settings for the current project.

Examples:
  relsync config --list
  relsync config release_branch
  relsync config release_branch main
  relsync config release_whitelist "Plugin/, manifest.xml, .*\.md$"`,
	RunE: runConfig,
}

var configListFlag bool

func init() {
	configCmd.Flags().BoolVar(&configListFlag, "list", false, "List all settings")
}

func runConfig(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(filepath.Join(workDir, config.DefaultFileName), filepath.Base(workDir))
	if err != nil {
		return err
	}

	if configListFlag || len(args) == 0 {
		for _, key := range config.Keys() {
			v, _ := cfg.Get(key)
			if v == "" {
				fmt.Printf("  %s = %s\n", key, colors.Gray("(not set)"))
				continue
			}
			fmt.Printf("  %s = %s\n", key, colors.Info(v))
		}
		return nil
	}

	if len(args) == 1 {
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	}

	if len(args) == 2 {
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("%s %s = %s\n", colors.Success("[OK]"), args[0], args[1])
		return nil
	}

	return fmt.Errorf("invalid usage. See: relsync config --help")
}
