package release

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relsync/relsync/internal/archive"
	"github.com/relsync/relsync/internal/config"
	"github.com/relsync/relsync/internal/whitelist"
)

// fakeGit implements gitcmd.Client, recording each operation as a
// git-flavored string.
type fakeGit struct {
	ops             []string
	branch          string
	pending         bool
	staged          bool
	remoteURL       string
	deleteBranchErr error
	failOn          string
}

func (f *fakeGit) record(op string) error {
	f.ops = append(f.ops, op)
	if f.failOn != "" && strings.HasPrefix(op, f.failOn) {
		return errors.New("simulated git failure")
	}
	return nil
}

func (f *fakeGit) CurrentBranch(ctx context.Context) (string, error) { return f.branch, nil }

func (f *fakeGit) Checkout(ctx context.Context, ref string, force bool) error {
	op := "checkout " + ref
	if force {
		op += " -f"
	}
	f.branch = ref
	return f.record(op)
}

func (f *fakeGit) CheckoutOrphan(ctx context.Context, branch, from string) error {
	f.branch = branch
	return f.record("checkout --orphan " + branch + " " + from)
}

func (f *fakeGit) DeleteBranch(ctx context.Context, branch string) error {
	if err := f.record("branch -D " + branch); err != nil {
		return err
	}
	return f.deleteBranchErr
}

func (f *fakeGit) Add(ctx context.Context, paths ...string) error {
	return f.record("add " + strings.Join(paths, " "))
}

func (f *fakeGit) AddAll(ctx context.Context) error { return f.record("add -A") }

func (f *fakeGit) Commit(ctx context.Context, message string, allowEmpty bool) error {
	op := "commit " + message
	if allowEmpty {
		op += " --allow-empty"
	}
	return f.record(op)
}

func (f *fakeGit) Push(ctx context.Context, remote, refspec string, force bool) error {
	op := "push " + remote + " " + refspec
	if force {
		op += " --force"
	}
	return f.record(op)
}

func (f *fakeGit) Pull(ctx context.Context, remote, branch string) error {
	return f.record("pull " + remote + " " + branch)
}

func (f *fakeGit) TagAnnotated(ctx context.Context, tag, message string) error {
	return f.record("tag -a " + tag)
}

func (f *fakeGit) LastTag(ctx context.Context) (string, error) {
	return "", errors.New("no tags")
}

func (f *fakeGit) LogSubjects(ctx context.Context, sinceTag string, limit int) ([]string, error) {
	return []string{"Fix crash"}, nil
}

func (f *fakeGit) HasPendingChanges(ctx context.Context) (bool, error) { return f.pending, nil }
func (f *fakeGit) HasStagedChanges(ctx context.Context) (bool, error)  { return f.staged, nil }

func (f *fakeGit) RemoteURL(ctx context.Context, remote string) (string, error) {
	return f.remoteURL, nil
}

func (f *fakeGit) CheckoutPathsFrom(ctx context.Context, ref string, paths ...string) error {
	return f.record("checkout " + ref + " -- " + strings.Join(paths, " "))
}

// opIndex returns the position of the first op with the given prefix, or -1.
func (f *fakeGit) opIndex(prefix string) int {
	for i, op := range f.ops {
		if strings.HasPrefix(op, prefix) {
			return i
		}
	}
	return -1
}

type fakePublisher struct {
	deletedTag string
	deleteErr  error
	createdTag string
	notes      string
}

func (p *fakePublisher) DeleteByTag(ctx context.Context, owner, repo, tag string) error {
	p.deletedTag = tag
	return p.deleteErr
}

func (p *fakePublisher) Create(ctx context.Context, owner, repo, tag, title, notes string) error {
	p.createdTag = tag
	p.notes = notes
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// newTestOrchestrator builds an orchestrator over a realistic project tree
// with a stubbed backup.
func newTestOrchestrator(t *testing.T, g *fakeGit, pub Publisher) (*Orchestrator, string, *[]string) {
	t.Helper()

	workDir := filepath.Join(t.TempDir(), "proj")
	writeFile(t, filepath.Join(workDir, "Plugin", "a.dll"), "bin")
	writeFile(t, filepath.Join(workDir, "manifest.xml"), "<Manifest><Version>1.2.0</Version></Manifest>")
	writeFile(t, filepath.Join(workDir, "README.md"), "# proj\nVersion: 1.0.0\n")
	writeFile(t, filepath.Join(workDir, "secret.key"), "hunter2")

	cfg := config.Default("proj")
	cfg.LocalFolderName = "proj"

	rules, err := whitelist.Compile(cfg.ReleaseWhitelist)
	if err != nil {
		t.Fatal(err)
	}

	o := New(cfg, g, rules, pub, testLogger(), workDir, "1.2.0")
	o.now = func() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }

	var backups []string
	o.backup = func(label, destDir, branch string) (*archive.Result, error) {
		backups = append(backups, label+" -> "+destDir)
		return &archive.Result{Path: filepath.Join(destDir, "backup.zip"), Checksum: "abcd"}, nil
	}
	return o, workDir, &backups
}

func TestRunDeploy(t *testing.T) {
	g := &fakeGit{branch: "dev", pending: true, remoteURL: "git@github.com:acme/proj.git"}
	pub := &fakePublisher{}
	o, workDir, backups := newTestOrchestrator(t, g, pub)

	if err := o.Run(context.Background(), ModeDeploy); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Backup happened before any branch mutation, into the parent dir.
	if len(*backups) != 1 || (*backups)[0] != "PRE_DEPLOY -> "+filepath.Dir(workDir) {
		t.Errorf("backups = %v", *backups)
	}
	if o.LastBackup() == nil {
		t.Error("LastBackup not recorded")
	}

	// Flatten removed the non-whitelisted file and kept the rest.
	if _, err := os.Stat(filepath.Join(workDir, "secret.key")); !os.IsNotExist(err) {
		t.Error("secret.key survived the flatten sweep")
	}
	for _, keep := range []string{"Plugin/a.dll", "manifest.xml", "README.md", "CHANGELOG.md"} {
		if _, err := os.Stat(filepath.Join(workDir, filepath.FromSlash(keep))); err != nil {
			t.Errorf("%s missing after flatten: %v", keep, err)
		}
	}

	// Readme version token rewritten.
	data, err := os.ReadFile(filepath.Join(workDir, "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Version: 1.2.0") {
		t.Errorf("readme not rewritten: %q", string(data))
	}

	// Changelog entry generated from history.
	data, err = os.ReadFile(filepath.Join(workDir, "CHANGELOG.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "## [1.2.0]") || !strings.Contains(string(data), "- Fix crash") {
		t.Errorf("changelog wrong: %q", string(data))
	}

	// Order of the critical git operations.
	sequence := []string{
		"commit v1.2.0 | Metadata update",
		"branch -D temp_release_work",
		"checkout --orphan temp_release_work dev",
		"add -A",
		"commit Release v1.2.0 --allow-empty",
		"push origin temp_release_work:master --force",
		"tag -a v1.2.0",
		"push origin v1.2.0",
		"checkout dev -f",
		"checkout v1.2.0 -- manifest.xml CHANGELOG.md README.md",
	}
	prev := -1
	for _, op := range sequence {
		idx := g.opIndex(op)
		if idx < 0 {
			t.Fatalf("operation %q never ran; ops: %v", op, g.ops)
		}
		if idx < prev {
			t.Errorf("operation %q ran out of order; ops: %v", op, g.ops)
		}
		prev = idx
	}

	// Hosted release replaced.
	if pub.deletedTag != "v1.2.0" || pub.createdTag != "v1.2.0" {
		t.Errorf("publisher tags: deleted=%q created=%q", pub.deletedTag, pub.createdTag)
	}
	if pub.notes != "- Fix crash" {
		t.Errorf("release notes = %q", pub.notes)
	}

	// Temp branch cleaned up at the end.
	if last := g.ops[len(g.ops)-1]; last != "branch -D temp_release_work" {
		t.Errorf("last op = %q, want temp branch cleanup", last)
	}
}

func TestRunUpdateCommitsEvenWithZeroDiff(t *testing.T) {
	g := &fakeGit{branch: "dev", pending: false, remoteURL: "git@github.com:acme/proj.git"}
	pub := &fakePublisher{}
	o, _, _ := newTestOrchestrator(t, g, pub)

	if err := o.Run(context.Background(), ModeUpdate); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The update commit is unconditional, allow-empty, and followed by a
	// plain (non-force) push.
	if g.opIndex("commit Update v1.2.0 --allow-empty") < 0 {
		t.Errorf("allow-empty update commit missing; ops: %v", g.ops)
	}
	pushIdx := g.opIndex("push origin master")
	if pushIdx < 0 || strings.Contains(g.ops[pushIdx], "--force") {
		t.Errorf("update push wrong; ops: %v", g.ops)
	}
	if g.opIndex("pull origin master") < 0 {
		t.Errorf("update must pull the release branch first; ops: %v", g.ops)
	}

	// No hosted release in update mode.
	if pub.createdTag != "" || pub.deletedTag != "" {
		t.Errorf("publisher must not be called in update mode")
	}

	// Tagging still happens.
	if g.opIndex("tag -a v1.2.0") < 0 {
		t.Errorf("tag missing; ops: %v", g.ops)
	}
}

func TestRunToleratesStaleTempBranch(t *testing.T) {
	g := &fakeGit{
		branch:          "dev",
		remoteURL:       "git@github.com:acme/proj.git",
		deleteBranchErr: errors.New("branch 'temp_release_work' not found"),
	}
	o, _, _ := newTestOrchestrator(t, g, &fakePublisher{})

	if err := o.Run(context.Background(), ModeDeploy); err != nil {
		t.Fatalf("stale-branch deletion failure must be ignored: %v", err)
	}
	if g.opIndex("checkout --orphan temp_release_work dev") < 0 {
		t.Errorf("orphan branch never created; ops: %v", g.ops)
	}
}

func TestRunSwitchesOffReleaseBranchFirst(t *testing.T) {
	g := &fakeGit{branch: "master", remoteURL: "git@github.com:acme/proj.git"}
	o, _, _ := newTestOrchestrator(t, g, &fakePublisher{})

	if err := o.Run(context.Background(), ModeDeploy); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if g.ops[0] != "checkout dev" {
		t.Errorf("first op = %q, want switch to dev branch", g.ops[0])
	}
}

func TestRunFailsOnPushFailure(t *testing.T) {
	g := &fakeGit{branch: "dev", remoteURL: "git@github.com:acme/proj.git", failOn: "push"}
	o, _, _ := newTestOrchestrator(t, g, &fakePublisher{})

	err := o.Run(context.Background(), ModeDeploy)
	if err == nil {
		t.Fatal("expected failure when push fails")
	}
	if !strings.Contains(err.Error(), "PUSH_RELEASE") {
		t.Errorf("error should name the failing state: %v", err)
	}
}

func TestRunContinuesWhenBackupFails(t *testing.T) {
	g := &fakeGit{branch: "dev", remoteURL: "git@github.com:acme/proj.git"}
	o, _, _ := newTestOrchestrator(t, g, &fakePublisher{})
	o.backup = func(label, destDir, branch string) (*archive.Result, error) {
		return nil, errors.New("disk full")
	}

	if err := o.Run(context.Background(), ModeDeploy); err != nil {
		t.Fatalf("archive failure must not abort the release: %v", err)
	}
	if o.LastBackup() != nil {
		t.Error("LastBackup should be nil after a failed backup")
	}
}

func TestRunSwallowsHostedReleaseDeleteFailure(t *testing.T) {
	g := &fakeGit{branch: "dev", remoteURL: "git@github.com:acme/proj.git"}
	pub := &fakePublisher{deleteErr: errors.New("404")}
	o, _, _ := newTestOrchestrator(t, g, pub)

	if err := o.Run(context.Background(), ModeDeploy); err != nil {
		t.Fatalf("hosted release deletion is best-effort: %v", err)
	}
	if pub.createdTag != "v1.2.0" {
		t.Error("release must still be created after failed deletion")
	}
}
