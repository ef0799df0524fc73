package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/relsync/relsync/internal/archive"
	"github.com/relsync/relsync/internal/colors"
	"github.com/relsync/relsync/internal/config"
	"github.com/relsync/relsync/internal/gitcmd"
	"github.com/relsync/relsync/internal/hostrel"
	"github.com/relsync/relsync/internal/journal"
	"github.com/relsync/relsync/internal/logging"
	"github.com/relsync/relsync/internal/manifest"
	"github.com/relsync/relsync/internal/release"
	"github.com/relsync/relsync/internal/whitelist"
)

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	now := time.Now()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := config.Load(filepath.Join(workDir, config.DefaultFileName), filepath.Base(workDir))
	if err != nil {
		return err
	}
	if cfg.LocalFolderName == config.FolderNameSentinel {
		if err := confirmFolderName(cfg, filepath.Base(workDir), flagYes); err != nil {
			return err
		}
	}
	if err := cfg.VerifyWorkingDir(workDir); err != nil {
		return err
	}

	session := logging.Open(filepath.Join(workDir, cfg.LogDir), now)
	defer session.Close()

	ver := manifest.Resolve(filepath.Join(workDir, cfg.ManifestPath), cfg.DefaultVersion)
	if !flagYes {
		ver = promptVersion(ver)
	}
	cfg.DefaultVersion = ver
	if err := cfg.Save(); err != nil {
		return err
	}

	// Whitelist rules are validated up front, before any filtering begins.
	rules, err := whitelist.Compile(cfg.ReleaseWhitelist)
	if err != nil {
		return err
	}

	g := gitcmd.NewShellClient(workDir)
	branch, _ := g.CurrentBranch(ctx)

	var (
		op     string
		res    *archive.Result
		runErr error
	)
	switch {
	case flagFullBackup:
		op = "full-backup"
		res, runErr = createArchive(cfg, workDir, filepath.Dir(workDir), "FULL_BACKUP", ver, branch, nil)
	case flagZip:
		op = "zip"
		res, runErr = createArchive(cfg, workDir, workDir, "LOCAL_ZIP", ver, branch, rules.Allowed)
	case flagDeploy, flagUpdate:
		mode := release.ModeUpdate
		op = "update"
		if flagDeploy {
			mode = release.ModeDeploy
			op = "deploy"
		}
		orch := release.New(cfg, g, rules, hostrel.NewClient(), session.Logger, workDir, ver)
		runErr = orch.Run(ctx, mode)
		res = orch.LastBackup()
	default:
		op = "dev-sync"
		runErr = devSync(ctx, cfg, g, ver)
	}

	recordRun(session, cfg, workDir, journal.Entry{
		Time:      now,
		Operation: op,
		Version:   ver,
		Branch:    branch,
		Outcome:   outcome(runErr),
	}, res)

	if flagOpen {
		openLog(cfg, session.Path())
	}

	if runErr != nil {
		// Archive failures end the operation but never the session status.
		if op == "full-backup" || op == "zip" {
			session.Error("archive failed", "error", runErr)
			return nil
		}
		session.Error("operation failed", "operation", op, "error", runErr)
		return runErr
	}
	return nil
}

// createArchive runs one archive operation and prints the result. The error
// comes back to the caller only for logging and journaling; it is always
// non-fatal.
func createArchive(cfg *config.Settings, rootDir, destDir, label, ver, branch string, include func(string) bool) (*archive.Result, error) {
	res, err := archive.Create(rootDir, destDir, cfg.BackupFormat, time.Now(), archive.Context{
		Type:    label,
		Project: cfg.RemoteProjectName,
		Version: ver,
		Branch:  branch,
	}, include)
	if err != nil {
		return nil, err
	}
	fmt.Printf("%s %s\n", colors.Success("[OK]"), res.Path)
	fmt.Printf("     blake3 %s\n", colors.Gray(res.Checksum))
	return res, nil
}

// devSync is the default operation: commit and push whatever is pending on
// the development branch.
func devSync(ctx context.Context, cfg *config.Settings, g gitcmd.Client, ver string) error {
	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if branch != cfg.DevBranch {
		if err := g.Checkout(ctx, cfg.DevBranch, true); err != nil {
			return err
		}
	}
	if err := g.Add(ctx, "."); err != nil {
		return err
	}
	staged, err := g.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !staged {
		fmt.Println("Nothing to sync on dev branch.")
		return nil
	}

	msg := "auto sync"
	if !flagYes {
		msg = promptLine(fmt.Sprintf("Dev commit msg (v%s): ", ver))
		if msg == "" {
			fmt.Println(colors.Warning("Empty message, nothing committed."))
			return nil
		}
	}
	if err := g.Commit(ctx, fmt.Sprintf("v%s | %s", ver, msg), false); err != nil {
		return err
	}
	return g.Push(ctx, cfg.DevRemote, cfg.DevBranch, false)
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

// recordRun appends the run to the journal. Journal trouble is logged and
// otherwise ignored.
func recordRun(session *logging.Session, cfg *config.Settings, workDir string, e journal.Entry, res *archive.Result) {
	if res != nil {
		e.Archive = res.Path
		e.Checksum = res.Checksum
	}
	db, err := journal.Open(filepath.Join(workDir, cfg.LogDir, "journal.db"))
	if err != nil {
		session.Warn("open journal", "error", err)
		return
	}
	defer db.Close()
	if err := db.Record(e); err != nil {
		session.Warn("record run", "error", err)
	}
}

// openLog opens the day's session log with the configured editor,
// best-effort.
func openLog(cfg *config.Settings, path string) {
	editor := cfg.Editor
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		fmt.Println(colors.Warning("No editor configured; session log at " + path))
		return
	}
	if err := exec.Command(editor, path).Start(); err != nil {
		fmt.Println(colors.Warning("Could not open session log: " + err.Error()))
	}
}
