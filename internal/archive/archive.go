// Package archive produces dated zip snapshots of the project tree.
// Snapshots are write-once: a failed archive is removed rather than left
// behind as a valid-looking file.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"lukechampine.com/blake3"
)

// ErrArchiveFailed wraps every archive creation failure. Archive failures
// are logged by callers and never abort the overall session.
var ErrArchiveFailed = errors.New("archive failed")

// Context supplies the fields substituted into the backup name template.
type Context struct {
	Type    string
	Project string
	Version string
	Branch  string
}

// ExpandName substitutes the template fields. The result is a pure function
// of the template, the timestamp, and the context.
func ExpandName(template string, now time.Time, c Context) string {
	return strings.NewReplacer(
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("150405"),
		"{type}", c.Type,
		"{project}", c.Project,
		"{version}", c.Version,
		"{branch}", c.Branch,
	).Replace(template)
}

// Result describes a finished archive.
type Result struct {
	Path     string
	Checksum string // blake3 hex of the archive file
}

// Create walks rootDir and writes a zip archive into destDir, named from the
// template. Regular files are stored under their forward-slash relative
// paths. When include is non-nil a file only enters the archive if
// include(relPath) is true; the archive's own destination file is always
// skipped. Any failure removes the partial output and returns an error
// wrapping ErrArchiveFailed.
func Create(rootDir, destDir, template string, now time.Time, c Context, include func(string) bool) (*Result, error) {
	name := ExpandName(template, now, c)
	zipPath := filepath.Join(destDir, name)

	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}

	fail := func(err error) (*Result, error) {
		f.Close()
		os.Remove(zipPath)
		return nil, fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}

	zw := zip.NewWriter(f)
	absZip, err := filepath.Abs(zipPath)
	if err != nil {
		return fail(err)
	}

	err = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if abs == absZip {
			return nil
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if include != nil && !include(rel) {
			return nil
		}
		return addFile(zw, path, rel)
	})
	if err != nil {
		zw.Close()
		return fail(err)
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(zipPath)
		return nil, fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}

	sum, err := checksum(zipPath)
	if err != nil {
		os.Remove(zipPath)
		return nil, fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}
	return &Result{Path: zipPath, Checksum: sum}, nil
}

func addFile(zw *zip.Writer, path, rel string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(rel)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// checksum returns the blake3 hex digest of the file at path.
func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
