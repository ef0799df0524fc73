// Package manifest extracts the project version from the XML manifest file.
// The manifest is the authoritative source of truth; a missing or broken
// manifest silently falls back to the stored default.
package manifest

import (
	"encoding/xml"
	"os"
	"strings"
)

type document struct {
	XMLName xml.Name
	Version string `xml:"Version"`
}

// Read returns the version recorded in the manifest at path, or "" when the
// file is absent, unparseable, or has no Version element. A parse failure is
// never an error here.
func Read(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Version)
}

// Resolve picks the project version with manifest-first priority:
// manifest file, then storedDefault, then "1.0.0".
func Resolve(manifestPath, storedDefault string) string {
	if v := Read(manifestPath); v != "" {
		return v
	}
	if storedDefault != "" {
		return storedDefault
	}
	return "1.0.0"
}
