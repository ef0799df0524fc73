// Package gitcmd shells out to the git binary. Every operation runs the
// command exactly once; callers decide per call site whether a failure is
// fatal or best-effort.
package gitcmd

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CommandError carries the failed git invocation and its combined output.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error { return e.Err }

// Client is the set of git operations the tool needs. Implemented by
// ShellClient in production and by fakes in tests.
type Client interface {
	CurrentBranch(ctx context.Context) (string, error)
	Checkout(ctx context.Context, ref string, force bool) error
	CheckoutOrphan(ctx context.Context, branch, from string) error
	DeleteBranch(ctx context.Context, branch string) error
	Add(ctx context.Context, paths ...string) error
	AddAll(ctx context.Context) error
	Commit(ctx context.Context, message string, allowEmpty bool) error
	Push(ctx context.Context, remote, refspec string, force bool) error
	Pull(ctx context.Context, remote, branch string) error
	TagAnnotated(ctx context.Context, tag, message string) error
	LastTag(ctx context.Context) (string, error)
	LogSubjects(ctx context.Context, sinceTag string, limit int) ([]string, error)
	HasPendingChanges(ctx context.Context) (bool, error)
	HasStagedChanges(ctx context.Context) (bool, error)
	RemoteURL(ctx context.Context, remote string) (string, error)
	CheckoutPathsFrom(ctx context.Context, ref string, paths ...string) error
}

// ShellClient implements Client by running git against a fixed directory.
type ShellClient struct {
	dir string
}

// NewShellClient returns a client operating on the repository at dir.
func NewShellClient(dir string) *ShellClient {
	return &ShellClient{dir: dir}
}

func (c *ShellClient) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", c.dir}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &CommandError{Args: args, Output: string(out), Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentBranch returns the abbreviated name of HEAD.
func (c *ShellClient) CurrentBranch(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// Checkout switches to ref, discarding local changes when force is set.
func (c *ShellClient) Checkout(ctx context.Context, ref string, force bool) error {
	args := []string{"checkout", ref}
	if force {
		args = append(args, "-f")
	}
	_, err := c.run(ctx, args...)
	return err
}

// CheckoutOrphan creates branch with no history, starting from the tree of
// the from ref.
func (c *ShellClient) CheckoutOrphan(ctx context.Context, branch, from string) error {
	_, err := c.run(ctx, "checkout", "--orphan", branch, from)
	return err
}

// DeleteBranch force-deletes a local branch. Deleting a branch that does not
// exist returns an error the caller is expected to ignore.
func (c *ShellClient) DeleteBranch(ctx context.Context, branch string) error {
	_, err := c.run(ctx, "branch", "-D", branch)
	return err
}

// Add stages the given paths.
func (c *ShellClient) Add(ctx context.Context, paths ...string) error {
	_, err := c.run(ctx, append([]string{"add"}, paths...)...)
	return err
}

// AddAll stages every change in the working tree, deletions included.
func (c *ShellClient) AddAll(ctx context.Context) error {
	_, err := c.run(ctx, "add", "-A")
	return err
}

// Commit records the staged changes.
func (c *ShellClient) Commit(ctx context.Context, message string, allowEmpty bool) error {
	args := []string{"commit", "-m", message}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	_, err := c.run(ctx, args...)
	return err
}

// Push sends refspec to remote. refspec may be a branch, a tag name, or a
// src:dst pair.
func (c *ShellClient) Push(ctx context.Context, remote, refspec string, force bool) error {
	args := []string{"push", remote, refspec}
	if force {
		args = append(args, "--force")
	}
	_, err := c.run(ctx, args...)
	return err
}

// Pull fetches and merges branch from remote.
func (c *ShellClient) Pull(ctx context.Context, remote, branch string) error {
	_, err := c.run(ctx, "pull", remote, branch)
	return err
}

// TagAnnotated creates an annotated tag at HEAD.
func (c *ShellClient) TagAnnotated(ctx context.Context, tag, message string) error {
	_, err := c.run(ctx, "tag", "-a", tag, "-m", message)
	return err
}

// LastTag returns the most recent reachable tag. The error is non-nil when
// no tag exists.
func (c *ShellClient) LastTag(ctx context.Context) (string, error) {
	return c.run(ctx, "describe", "--tags", "--abbrev=0")
}

// LogSubjects returns commit subject lines, newest first. With a non-empty
// sinceTag it covers sinceTag..HEAD, otherwise the last limit commits.
func (c *ShellClient) LogSubjects(ctx context.Context, sinceTag string, limit int) ([]string, error) {
	var args []string
	if sinceTag != "" {
		args = []string{"log", sinceTag + "..HEAD", "--pretty=format:%s"}
	} else {
		args = []string{"log", "-n", strconv.Itoa(limit), "--pretty=format:%s"}
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var subjects []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			subjects = append(subjects, line)
		}
	}
	return subjects, nil
}

// HasPendingChanges reports whether the working tree or index differ from
// HEAD, per git status --porcelain.
func (c *ShellClient) HasPendingChanges(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// HasStagedChanges reports whether anything is staged for commit.
func (c *ShellClient) HasStagedChanges(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "diff", "--cached", "--name-status")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// RemoteURL returns the fetch URL of the named remote.
func (c *ShellClient) RemoteURL(ctx context.Context, remote string) (string, error) {
	return c.run(ctx, "remote", "get-url", remote)
}

// CheckoutPathsFrom overlays the given paths from ref onto the working tree.
func (c *ShellClient) CheckoutPathsFrom(ctx context.Context, ref string, paths ...string) error {
	args := append([]string{"checkout", ref, "--"}, paths...)
	_, err := c.run(ctx, args...)
	return err
}
