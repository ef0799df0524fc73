package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relsync/relsync/internal/colors"
	"github.com/relsync/relsync/internal/config"
	"github.com/relsync/relsync/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs",
	Long:  `Display the journal of past relsync runs, newest first.`,
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := config.Load(filepath.Join(workDir, config.DefaultFileName), filepath.Base(workDir))
	if err != nil {
		return err
	}

	db, err := journal.Open(filepath.Join(workDir, cfg.LogDir, "journal.db"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	entries, err := db.List(historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No recorded runs yet.")
		return nil
	}

	for _, e := range entries {
		status := colors.Success(e.Outcome)
		if e.Outcome != "ok" {
			status = colors.Error(e.Outcome)
		}
		fmt.Printf("%s  %-12s v%-10s %-8s %s\n",
			colors.Gray(e.Time.Local().Format("2006-01-02 15:04:05")),
			e.Operation, e.Version, status, e.Branch)
		if e.Archive != "" {
			fmt.Printf("    %s %s\n", colors.Gray("archive"), e.Archive)
		}
	}
	return nil
}
