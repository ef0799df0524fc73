// Package changelog maintains the CHANGELOG document: one dated section per
// version, inserted right below the title, derived from commit history since
// the last tag.
package changelog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const title = "# Changelog"

// DefaultLine stands in when no commits are available for the entry body.
const DefaultLine = "- General updates."

// historyWindow is how many commits feed the entry when no tag exists yet.
const historyWindow = 5

// HistorySource is the slice of the git client Collect needs.
type HistorySource interface {
	LastTag(ctx context.Context) (string, error)
	LogSubjects(ctx context.Context, sinceTag string, limit int) ([]string, error)
}

// Collect derives the change description lines for the next entry: commit
// subjects since the last tag, or the last few commits when the repository
// has no tag. An empty history yields the single default line.
func Collect(ctx context.Context, g HistorySource) []string {
	sinceTag, err := g.LastTag(ctx)
	if err != nil {
		sinceTag = ""
	}
	subjects, err := g.LogSubjects(ctx, sinceTag, historyWindow)
	if err != nil || len(subjects) == 0 {
		return []string{DefaultLine}
	}
	lines := make([]string, len(subjects))
	for i, s := range subjects {
		lines[i] = "- " + s
	}
	return lines
}

// Entry renders one changelog section for version, dated at now.
func Entry(version string, lines []string, now time.Time) string {
	if len(lines) == 0 {
		lines = []string{DefaultLine}
	}
	return fmt.Sprintf("## [%s] - %s\n%s\n\n", version, now.Format("2006-01-02"), strings.Join(lines, "\n"))
}

// Append inserts the entry for version into the document at path, directly
// after the title line. The document is created with its title if missing.
// If a section for version already exists the document is left untouched and
// Append reports false.
func Append(path, version string, lines []string, now time.Time) (bool, error) {
	content := title + "\n\n"
	if data, err := os.ReadFile(path); err == nil {
		content = string(data)
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("read changelog: %w", err)
	}

	if strings.Contains(content, "## ["+version+"]") {
		return false, nil
	}

	entry := Entry(version, lines, now)
	header := title + "\n\n"
	if idx := strings.Index(content, header); idx >= 0 {
		at := idx + len(header)
		content = content[:at] + entry + content[at:]
	} else {
		// Document without a canonical title: put one on top.
		content = header + entry + content
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("write changelog: %w", err)
	}
	return true, nil
}
