// Package release drives the branch synchronization sequence: metadata
// commit, pre-release backup, orphan-branch flatten with whitelist
// filtering, release push, tagging, optional hosted release, and metadata
// back-sync to the development branch.
package release

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/relsync/relsync/internal/archive"
	"github.com/relsync/relsync/internal/changelog"
	"github.com/relsync/relsync/internal/config"
	"github.com/relsync/relsync/internal/gitcmd"
	"github.com/relsync/relsync/internal/hostrel"
	"github.com/relsync/relsync/internal/whitelist"
)

// tempBranch is the ephemeral staging branch. It never outlives a single
// release run, but a crashed run can leave it behind; the flatten step
// deletes any stale copy first.
const tempBranch = "temp_release_work"

// versionToken matches "version: 1.2.3"-style tokens in the readme.
var versionToken = regexp.MustCompile(`(?i)(version[:\s]+)([0-9.]+)`)

// Publisher creates and deletes hosted releases for a tag.
type Publisher interface {
	DeleteByTag(ctx context.Context, owner, repo, tag string) error
	Create(ctx context.Context, owner, repo, tag, title, notes string) error
}

type backupFunc func(label, destDir, branch string) (*archive.Result, error)

// Orchestrator sequences one release run. It owns no global state; every
// collaborator is injected.
type Orchestrator struct {
	cfg     *config.Settings
	git     gitcmd.Client
	rules   *whitelist.RuleSet
	pub     Publisher
	log     *slog.Logger
	workDir string
	version string

	now    func() time.Time
	backup backupFunc

	notes      []string
	lastBackup *archive.Result
}

// New builds an orchestrator for one release of version from workDir.
// pub may be nil, in which case hosted release publication is skipped.
func New(cfg *config.Settings, g gitcmd.Client, rules *whitelist.RuleSet, pub Publisher, logger *slog.Logger, workDir, version string) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		git:     g,
		rules:   rules,
		pub:     pub,
		log:     logger,
		workDir: workDir,
		version: version,
		now:     time.Now,
	}
	o.backup = func(label, destDir, branch string) (*archive.Result, error) {
		return archive.Create(workDir, destDir, cfg.BackupFormat, o.now(), archive.Context{
			Type:    label,
			Project: cfg.RemoteProjectName,
			Version: version,
			Branch:  branch,
		}, nil)
	}
	return o
}

// Run executes the release state machine for mode. The first failing
// non-recoverable step terminates the run; best-effort steps (stale branch
// deletion, hosted release deletion, cleanup) log and continue.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) error {
	for st := StateVerifyEnv; st != stateDone; st = st.next(mode) {
		o.log.Info("release step", "state", st.String(), "version", o.version)
		if err := o.step(ctx, mode, st); err != nil {
			return fmt.Errorf("%s: %w", st, err)
		}
	}
	o.log.Info("release complete", "mode", mode.Label(), "version", o.version)
	return nil
}

// Notes returns the change descriptions collected for this release.
func (o *Orchestrator) Notes() []string { return o.notes }

// LastBackup returns the pre-release backup, if one was produced.
func (o *Orchestrator) LastBackup() *archive.Result { return o.lastBackup }

func (o *Orchestrator) step(ctx context.Context, mode Mode, st State) error {
	switch st {
	case StateVerifyEnv:
		return o.verifyEnv(ctx)
	case StateCommitMetadata:
		return o.commitMetadata(ctx)
	case StatePreReleaseBackup:
		return o.preReleaseBackup(ctx, mode)
	case StateBranchFlatten:
		return o.branchFlatten(ctx)
	case StatePushRelease:
		return o.pushRelease(ctx, mode)
	case StateTagAndPush:
		return o.tagAndPush(ctx)
	case StatePublishHosted:
		return o.publishHosted(ctx)
	case StateSyncMetadataBack:
		return o.syncMetadataBack(ctx)
	case StateCleanup:
		return o.cleanup(ctx)
	}
	return fmt.Errorf("unknown state %d", st)
}

// verifyEnv confirms the working directory identity and leaves the release
// branch if the run started there.
func (o *Orchestrator) verifyEnv(ctx context.Context) error {
	if err := o.cfg.VerifyWorkingDir(o.workDir); err != nil {
		return err
	}
	branch, err := o.git.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	if branch == o.cfg.ReleaseBranch {
		return o.git.Checkout(ctx, o.cfg.DevBranch, false)
	}
	return nil
}

// commitMetadata regenerates the changelog entry, rewrites version tokens in
// the readme, and commits the result when anything actually changed.
func (o *Orchestrator) commitMetadata(ctx context.Context) error {
	o.notes = changelog.Collect(ctx, o.git)

	inserted, err := changelog.Append(filepath.Join(o.workDir, o.cfg.ChangelogPath), o.version, o.notes, o.now())
	if err != nil {
		return err
	}
	if !inserted {
		o.log.Info("changelog already has this version", "version", o.version)
	}

	if err := o.rewriteReadmeVersion(); err != nil {
		return err
	}

	var stage []string
	for _, p := range []string{o.cfg.ChangelogPath, o.cfg.ReadmePath} {
		if _, err := os.Stat(filepath.Join(o.workDir, p)); err == nil {
			stage = append(stage, p)
		}
	}
	if len(stage) > 0 {
		if err := o.git.Add(ctx, stage...); err != nil {
			return err
		}
	}

	pending, err := o.git.HasPendingChanges(ctx)
	if err != nil {
		return err
	}
	if pending {
		return o.git.Commit(ctx, fmt.Sprintf("v%s | Metadata update", o.version), false)
	}
	return nil
}

// rewriteReadmeVersion replaces "version: X.Y.Z" tokens with the target
// version. A missing readme is fine.
func (o *Orchestrator) rewriteReadmeVersion() error {
	path := filepath.Join(o.workDir, o.cfg.ReadmePath)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	updated := versionToken.ReplaceAllString(string(data), "${1}"+o.version)
	if updated == string(data) {
		return nil
	}
	return os.WriteFile(path, []byte(updated), 0644)
}

// preReleaseBackup writes an unfiltered archive into the parent directory
// before any branch mutation. This is the rollback safety net for the
// force-push, but an archive failure itself never aborts the release.
func (o *Orchestrator) preReleaseBackup(ctx context.Context, mode Mode) error {
	branch, err := o.git.CurrentBranch(ctx)
	if err != nil {
		branch = ""
	}
	res, err := o.backup("PRE_"+mode.Label(), filepath.Dir(o.workDir), branch)
	if err != nil {
		o.log.Error("pre-release backup failed", "error", err)
		return nil
	}
	o.lastBackup = res
	o.log.Info("pre-release backup written", "path", res.Path, "blake3", res.Checksum)
	return nil
}

// branchFlatten stages the filtered release tree on a fresh orphan branch.
// The whitelist sweep here deletes files from the working tree; that is safe
// only because the orphan branch is discarded if the run aborts before the
// release push.
func (o *Orchestrator) branchFlatten(ctx context.Context) error {
	if err := o.git.DeleteBranch(ctx, tempBranch); err != nil {
		o.log.Debug("no stale temp branch to delete", "error", err)
	}
	if err := o.git.CheckoutOrphan(ctx, tempBranch, o.cfg.DevBranch); err != nil {
		return err
	}
	if err := o.flattenWorktree(); err != nil {
		return err
	}
	if err := o.git.AddAll(ctx); err != nil {
		return err
	}
	return o.git.Commit(ctx, "Release v"+o.version, true)
}

// flattenWorktree removes every top-level entry the whitelist does not
// allow. The git directory, the settings file, and the log directory are
// never touched.
func (o *Orchestrator) flattenWorktree() error {
	logTop := topSegment(o.cfg.LogDir)
	entries, err := os.ReadDir(o.workDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if name == ".git" || name == config.DefaultFileName || name == logTop {
			continue
		}
		if o.rules.AllowedEntry(name) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(o.workDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func topSegment(p string) string {
	p = filepath.ToSlash(p)
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

// pushRelease publishes the staged tree to the release branch: deploy mode
// force-pushes the orphan branch over it, update mode overlays the filtered
// tree on the existing branch history.
func (o *Orchestrator) pushRelease(ctx context.Context, mode Mode) error {
	if mode == ModeDeploy {
		return o.git.Push(ctx, o.cfg.ReleaseRemote, tempBranch+":"+o.cfg.ReleaseBranch, true)
	}

	if err := o.git.Checkout(ctx, o.cfg.ReleaseBranch, false); err != nil {
		return err
	}
	if err := o.git.Pull(ctx, o.cfg.ReleaseRemote, o.cfg.ReleaseBranch); err != nil {
		return err
	}
	if err := o.git.CheckoutPathsFrom(ctx, tempBranch, "."); err != nil {
		return err
	}
	if err := o.git.AddAll(ctx); err != nil {
		return err
	}
	// Commit even with zero diff so every update leaves a marker commit.
	if err := o.git.Commit(ctx, "Update v"+o.version, true); err != nil {
		return err
	}
	return o.git.Push(ctx, o.cfg.ReleaseRemote, o.cfg.ReleaseBranch, false)
}

func (o *Orchestrator) tagAndPush(ctx context.Context) error {
	tag := "v" + o.version
	if err := o.git.TagAnnotated(ctx, tag, tag); err != nil {
		return err
	}
	return o.git.Push(ctx, o.cfg.ReleaseRemote, tag, false)
}

// publishHosted replaces any hosted release for this tag with a fresh one
// carrying the changelog notes. Deleting a release that does not exist is
// expected and ignored.
func (o *Orchestrator) publishHosted(ctx context.Context) error {
	if o.pub == nil {
		o.log.Warn("no release publisher configured, skipping hosted release")
		return nil
	}
	url, err := o.git.RemoteURL(ctx, o.cfg.ReleaseRemote)
	if err != nil {
		return err
	}
	owner, repo, err := hostrel.ParseOwnerRepo(url)
	if err != nil {
		return err
	}
	tag := "v" + o.version
	if err := o.pub.DeleteByTag(ctx, owner, repo, tag); err != nil {
		o.log.Warn("delete existing hosted release", "tag", tag, "error", err)
	}
	return o.pub.Create(ctx, owner, repo, tag, tag, strings.Join(o.notes, "\n"))
}

// syncMetadataBack returns to the development branch and carries the
// manifest, changelog, and readme from the new tag back onto it.
func (o *Orchestrator) syncMetadataBack(ctx context.Context) error {
	if err := o.git.Checkout(ctx, o.cfg.DevBranch, true); err != nil {
		return err
	}
	tag := "v" + o.version
	if err := o.git.CheckoutPathsFrom(ctx, tag, o.cfg.ManifestPath, o.cfg.ChangelogPath, o.cfg.ReadmePath); err != nil {
		// Some of those paths may not exist at the tag.
		o.log.Warn("overlay metadata from tag", "tag", tag, "error", err)
	}
	pending, err := o.git.HasPendingChanges(ctx)
	if err != nil {
		return err
	}
	if !pending {
		return nil
	}
	if err := o.git.Commit(ctx, fmt.Sprintf("v%s | Sync metadata back from release", o.version), false); err != nil {
		return err
	}
	return o.git.Push(ctx, o.cfg.DevRemote, o.cfg.DevBranch, false)
}

func (o *Orchestrator) cleanup(ctx context.Context) error {
	if err := o.git.DeleteBranch(ctx, tempBranch); err != nil {
		o.log.Debug("temp branch cleanup", "error", err)
	}
	return nil
}
