// Package whitelist decides which files of the project tree are part of the
// public release. Rules come from the release_whitelist setting: a pattern
// ending in "/" keeps an entire directory by prefix, anything else is a
// regular expression matched against the bare file name.
package whitelist

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

type rule struct {
	pattern string
	dir     bool
	re      *regexp.Regexp
}

// RuleSet is a compiled, ordered set of whitelist rules. Matching is
// existential: a path is allowed if any rule matches.
type RuleSet struct {
	rules []rule
}

// Compile parses the rule patterns. A malformed regular expression is a
// configuration error and fails the whole set, before any filtering starts.
func Compile(patterns []string) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			rs.rules = append(rs.rules, rule{pattern: p, dir: true})
			continue
		}
		// Anchored at the start only, so "manifest.xml" behaves like a
		// literal name and ".*\.md$" keeps its own end anchor.
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("whitelist rule %q: %w", p, err)
		}
		rs.rules = append(rs.rules, rule{pattern: p, re: re})
	}
	return rs, nil
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Allowed reports whether the relative path survives release filtering.
// Separators are normalized to forward slashes; any path with a .git
// segment is rejected regardless of the rules.
func (rs *RuleSet) Allowed(relPath string) bool {
	p := strings.ReplaceAll(filepath.ToSlash(relPath), `\`, "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".git" {
			return false
		}
	}
	base := path.Base(p)
	for _, r := range rs.rules {
		if r.dir {
			if strings.HasPrefix(p, r.pattern) {
				return true
			}
		} else if r.re.MatchString(base) {
			return true
		}
	}
	return false
}

// AllowedEntry reports whether a top-level directory entry survives the
// destructive flatten sweep. Directory rules match the entry whose name
// equals the rule without its trailing slash; other rules match as regular
// expressions against the entry name.
func (rs *RuleSet) AllowedEntry(name string) bool {
	for _, r := range rs.rules {
		if r.dir {
			if name == strings.TrimSuffix(r.pattern, "/") {
				return true
			}
		} else if r.re.MatchString(name) {
			return true
		}
	}
	return false
}
