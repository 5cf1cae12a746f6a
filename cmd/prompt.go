package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/driftsync/driftsync/pkg/engine"
)

// interactive reports whether stdin is a terminal a user can answer on.
// Non-interactive runs fall back to the safe answers: skip conflicts,
// decline deletions.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func readLine() string {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(line))
}

// promptConflict implements the ask strategy on the terminal.
func promptConflict(info engine.ConflictInfo) engine.Decision {
	if !interactive() {
		return engine.DecisionSkip
	}

	fmt.Printf("\nConflict in mapping %s: %s was edited on both sides.\n", info.MappingID, info.RelPath)
	fmt.Printf("  project: %s (%d bytes)\n", info.Project.ModTime.Local().Format("2006-01-02 15:04:05"), info.Project.Size)
	fmt.Printf("  vault:   %s (%d bytes)\n", info.Vault.ModTime.Local().Format("2006-01-02 15:04:05"), info.Vault.Size)
	fmt.Print("Keep [p]roject, keep [v]ault, or [s]kip? ")

	switch readLine() {
	case "p", "project":
		return engine.DecisionKeepProject
	case "v", "vault":
		return engine.DecisionKeepVault
	default:
		return engine.DecisionSkip
	}
}

// promptDeletions asks for a single yes/no covering the whole batch.
func promptDeletions(deletions []engine.DetectedDeletion) bool {
	if !interactive() {
		return false
	}

	fmt.Printf("\n%d file(s) were deleted since the last sync:\n", len(deletions))
	for _, d := range deletions {
		fmt.Printf("  %s (deleted from %s, still in %s)\n", d.RelPath, d.DeletedFrom, d.ExistsIn)
	}
	fmt.Print("Delete the remaining copies? [y/N] ")

	answer := readLine()
	return answer == "y" || answer == "yes"
}
