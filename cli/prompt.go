package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/relsync/relsync/internal/colors"
	"github.com/relsync/relsync/internal/config"
)

var stdin = bufio.NewReader(os.Stdin)

func promptLine(msg string) string {
	fmt.Print(msg)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptConfirm(msg string) bool {
	return strings.EqualFold(promptLine(msg+" (y/n): "), "y")
}

// promptVersion shows the resolved version and accepts an override; empty
// input keeps the resolved value.
func promptVersion(ver string) string {
	fmt.Printf("\nDetected version from manifest: %s\n", colors.Info(ver))
	if in := promptLine(fmt.Sprintf("Confirm version [%s] (or enter new): ", ver)); in != "" {
		return in
	}
	return ver
}

// confirmFolderName resolves the first-run folder-name sentinel. In
// non-interactive mode this is a fatal configuration error: the operator has
// to confirm the project root once.
func confirmFolderName(cfg *config.Settings, detected string, autoYes bool) error {
	if autoYes {
		return fmt.Errorf("%w: set local_folder_name in %s or run once without --yes",
			config.ErrFolderUnset, config.DefaultFileName)
	}
	fmt.Printf("Detected current directory: %s\n", colors.Bold(detected))
	if promptConfirm(fmt.Sprintf("Use %q as project root?", detected)) {
		cfg.LocalFolderName = detected
	} else {
		name := promptLine("Enter exact project root folder name: ")
		if name == "" {
			return config.ErrFolderUnset
		}
		cfg.LocalFolderName = name
	}
	return cfg.Save()
}
