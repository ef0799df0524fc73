// Package config holds the per-project settings file for relsync. The file
// lives in the project root, is loaded once per run, lazily filled with
// defaults, and persisted back whenever a default is filled in or the
// tracked version changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the settings file name inside the project root.
const DefaultFileName = "relsync.yml"

// FolderNameSentinel marks a settings file whose project folder name has not
// been confirmed yet. Any state-mutating operation refuses to run until it is
// replaced with the real folder name.
const FolderNameSentinel = "CHANGE_ME"

var (
	// ErrFolderUnset means local_folder_name still holds the sentinel.
	ErrFolderUnset = errors.New("project folder name not confirmed")
	// ErrFolderMismatch means the working directory does not match
	// local_folder_name.
	ErrFolderMismatch = errors.New("working directory mismatch")
	// ErrUnknownKey is returned by Get/Set for keys outside the schema.
	ErrUnknownKey = errors.New("unknown settings key")
)

// Settings is the full configuration schema.
type Settings struct {
	LocalFolderName   string   `yaml:"local_folder_name"`
	RemoteProjectName string   `yaml:"remote_project_name"`
	DefaultVersion    string   `yaml:"default_version"`
	DevRemote         string   `yaml:"dev_remote"`
	ReleaseRemote     string   `yaml:"release_remote"`
	DevBranch         string   `yaml:"dev_branch"`
	ReleaseBranch     string   `yaml:"release_branch"`
	ManifestPath      string   `yaml:"manifest_path"`
	ReadmePath        string   `yaml:"readme_path"`
	ChangelogPath     string   `yaml:"changelog_path"`
	LogDir            string   `yaml:"log_dir"`
	Editor            string   `yaml:"editor,omitempty"`
	ReleaseWhitelist  []string `yaml:"release_whitelist"`
	BackupFormat      string   `yaml:"backup_format"`

	path string
}

// Default returns settings pre-filled for a project in a directory named
// detectedFolder.
func Default(detectedFolder string) *Settings {
	return &Settings{
		LocalFolderName:   FolderNameSentinel,
		RemoteProjectName: detectedFolder,
		DefaultVersion:    "1.0.0",
		DevRemote:         "origin",
		ReleaseRemote:     "origin",
		DevBranch:         "dev",
		ReleaseBranch:     "master",
		ManifestPath:      "manifest.xml",
		ReadmePath:        "README.md",
		ChangelogPath:     "CHANGELOG.md",
		LogDir:            "logs",
		Editor:            os.Getenv("EDITOR"),
		ReleaseWhitelist: []string{
			"Plugin/", "manifest.xml", ".gitignore", "LICENSE",
			"CHANGELOG.md", `.*\.csproj$`, `.*\.sln$`, `.*\.md$`,
		},
		BackupFormat: "{date}_{time}_{type}_{project}_v{version}_{branch}.zip",
	}
}

// Load reads the settings file at path, filling any missing option with its
// default. When a default had to be filled in, the merged settings are
// written back immediately so the operator can see and edit them.
func Load(path, detectedFolder string) (*Settings, error) {
	cfg := Default(detectedFolder)
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run: persist the defaults as the new settings file.
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}

	if filled := cfg.merge(&loaded); filled {
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// merge overlays loaded values onto the defaults and reports whether any
// default had to stand in for a missing option.
func (s *Settings) merge(loaded *Settings) (filled bool) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		} else {
			filled = true
		}
	}
	set(&s.LocalFolderName, loaded.LocalFolderName)
	set(&s.RemoteProjectName, loaded.RemoteProjectName)
	set(&s.DefaultVersion, loaded.DefaultVersion)
	set(&s.DevRemote, loaded.DevRemote)
	set(&s.ReleaseRemote, loaded.ReleaseRemote)
	set(&s.DevBranch, loaded.DevBranch)
	set(&s.ReleaseBranch, loaded.ReleaseBranch)
	set(&s.ManifestPath, loaded.ManifestPath)
	set(&s.ReadmePath, loaded.ReadmePath)
	set(&s.ChangelogPath, loaded.ChangelogPath)
	set(&s.LogDir, loaded.LogDir)
	set(&s.BackupFormat, loaded.BackupFormat)
	if loaded.Editor != "" {
		s.Editor = loaded.Editor
	}
	if len(loaded.ReleaseWhitelist) > 0 {
		s.ReleaseWhitelist = loaded.ReleaseWhitelist
	} else {
		filled = true
	}
	return filled
}

// Save writes the settings back to the file they were loaded from.
func (s *Settings) Save() error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Path returns the location of the settings file.
func (s *Settings) Path() string { return s.path }

// VerifyWorkingDir enforces the pre-flight invariant that the working
// directory's base name equals local_folder_name.
func (s *Settings) VerifyWorkingDir(workDir string) error {
	if s.LocalFolderName == FolderNameSentinel {
		return ErrFolderUnset
	}
	if base := filepath.Base(workDir); base != s.LocalFolderName {
		return fmt.Errorf("%w: expected %q, running in %q", ErrFolderMismatch, s.LocalFolderName, base)
	}
	return nil
}

// Keys lists the settings keys accepted by Get and Set, in schema order.
func Keys() []string {
	return []string{
		"local_folder_name", "remote_project_name", "default_version",
		"dev_remote", "release_remote", "dev_branch", "release_branch",
		"manifest_path", "readme_path", "changelog_path", "log_dir",
		"editor", "release_whitelist", "backup_format",
	}
}

func (s *Settings) field(key string) *string {
	switch key {
	case "local_folder_name":
		return &s.LocalFolderName
	case "remote_project_name":
		return &s.RemoteProjectName
	case "default_version":
		return &s.DefaultVersion
	case "dev_remote":
		return &s.DevRemote
	case "release_remote":
		return &s.ReleaseRemote
	case "dev_branch":
		return &s.DevBranch
	case "release_branch":
		return &s.ReleaseBranch
	case "manifest_path":
		return &s.ManifestPath
	case "readme_path":
		return &s.ReadmePath
	case "changelog_path":
		return &s.ChangelogPath
	case "log_dir":
		return &s.LogDir
	case "editor":
		return &s.Editor
	case "backup_format":
		return &s.BackupFormat
	}
	return nil
}

// Get returns the value of a settings key. The whitelist is rendered as a
// comma-separated list.
func (s *Settings) Get(key string) (string, error) {
	if key == "release_whitelist" {
		return strings.Join(s.ReleaseWhitelist, ", "), nil
	}
	if f := s.field(key); f != nil {
		return *f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Set updates a settings key in memory. The whitelist accepts a
// comma-separated list. Callers persist with Save.
func (s *Settings) Set(key, value string) error {
	if key == "release_whitelist" {
		var rules []string
		for _, r := range strings.Split(value, ",") {
			if r = strings.TrimSpace(r); r != "" {
				rules = append(rules, r)
			}
		}
		s.ReleaseWhitelist = rules
		return nil
	}
	if f := s.field(key); f != nil {
		*f = value
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownKey, key)
}
