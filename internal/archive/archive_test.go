package archive

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/relsync/relsync/internal/whitelist"
)

var testTime = time.Date(2024, 6, 15, 14, 5, 9, 0, time.UTC)

var testCtx = Context{
	Type:    "FULL_BACKUP",
	Project: "proj",
	Version: "2.3.1",
	Branch:  "dev",
}

func TestExpandName(t *testing.T) {
	tpl := "{date}_{time}_{type}_{project}_v{version}_{branch}.zip"
	want := "2024-06-15_140509_FULL_BACKUP_proj_v2.3.1_dev.zip"

	got := ExpandName(tpl, testTime, testCtx)
	if got != want {
		t.Errorf("ExpandName = %q, want %q", got, want)
	}

	// Deterministic: same inputs, same name.
	if again := ExpandName(tpl, testTime, testCtx); again != got {
		t.Errorf("ExpandName not deterministic: %q != %q", again, got)
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func archiveNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestCreateUnfiltered(t *testing.T) {
	root := filepath.Join(t.TempDir(), "proj")
	writeTree(t, root, map[string]string{
		"manifest.xml": "<Manifest/>",
		"src/main.cs":  "class Main {}",
	})
	dest := t.TempDir()

	res, err := Create(root, dest, "{type}_{project}.zip", testTime, testCtx, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got := archiveNames(t, res.Path)
	want := []string{"manifest.xml", "src/main.cs"}
	if len(got) != len(want) {
		t.Fatalf("archive entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
	if len(res.Checksum) != 64 {
		t.Errorf("checksum = %q, want 32-byte blake3 hex", res.Checksum)
	}
}

func TestCreateWhitelistFiltered(t *testing.T) {
	root := filepath.Join(t.TempDir(), "proj")
	writeTree(t, root, map[string]string{
		"Plugin/a.dll": "bin",
		"manifest.xml": "<Manifest/>",
		"notes.md":     "# notes",
		"secret.key":   "hunter2",
	})

	rules, err := whitelist.Compile([]string{"Plugin/", "manifest.xml", `.*\.md$`})
	if err != nil {
		t.Fatal(err)
	}

	res, err := Create(root, t.TempDir(), "{type}.zip", testTime, Context{Type: "LOCAL_ZIP"}, rules.Allowed)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got := archiveNames(t, res.Path)
	want := []string{"Plugin/a.dll", "manifest.xml", "notes.md"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("archive entries = %v, want exactly %v", got, want)
	}
}

func TestCreateSkipsOwnDestination(t *testing.T) {
	root := filepath.Join(t.TempDir(), "proj")
	writeTree(t, root, map[string]string{"a.txt": "a"})

	// Destination inside the tree being archived.
	res, err := Create(root, root, "{type}.zip", testTime, Context{Type: "LOCAL_ZIP"}, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got := archiveNames(t, res.Path)
	if len(got) != 1 || got[0] != "a.txt" {
		t.Errorf("archive entries = %v, want only a.txt", got)
	}
}

func TestCreateFailureLeavesNoPartialFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	dest := t.TempDir()

	_, err := Create(root, dest, "{type}.zip", testTime, Context{Type: "X"}, nil)
	if err == nil {
		t.Fatal("expected error for missing root")
	}
	if !errors.Is(err, ErrArchiveFailed) {
		t.Errorf("error = %v, want ErrArchiveFailed", err)
	}
	if _, statErr := os.Stat(filepath.Join(dest, "X.zip")); !os.IsNotExist(statErr) {
		t.Error("partial archive left behind after failure")
	}
}
