// Package conflict decides which side of a concurrently edited file wins.
package conflict

import (
	"fmt"
	"strings"
)

// ModTimeToleranceMS is the window within which two modification times are
// treated as equal. Filesystems round timestamps differently, so sub-second
// drift must not look like an edit.
const ModTimeToleranceMS = 1000

// Strategy selects how a two-sided edit is resolved.
type Strategy string

const (
	// StrategyNewerWins keeps the side with the later modification time.
	StrategyNewerWins Strategy = "newer-wins"
	// StrategyProjectWins always keeps the project side.
	StrategyProjectWins Strategy = "project-wins"
	// StrategyVaultWins always keeps the vault side.
	StrategyVaultWins Strategy = "vault-wins"
	// StrategyAsk defers the call to the host application.
	StrategyAsk Strategy = "ask"
)

// ParseStrategy validates a config value. The empty string maps to the
// default newer-wins.
func ParseStrategy(raw string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return StrategyNewerWins, nil
	case StrategyNewerWins, StrategyProjectWins, StrategyVaultWins, StrategyAsk:
		return s, nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q (expected newer-wins, project-wins, vault-wins or ask)", raw)
	}
}

// Winner identifies the side kept by a resolution, or that no call was made.
type Winner int

const (
	// WinnerUndecided means the strategy could not decide on its own and the
	// host must be consulted. Until it answers, the file is skipped.
	WinnerUndecided Winner = iota
	// WinnerProject keeps the project-side version.
	WinnerProject
	// WinnerVault keeps the vault-side version.
	WinnerVault
)

func (w Winner) String() string {
	switch w {
	case WinnerProject:
		return "project"
	case WinnerVault:
		return "vault"
	default:
		return "undecided"
	}
}

// SignificanceGapMS is the modification-time distance beyond which a
// conflict counts as significant even when the file sizes agree.
const SignificanceGapMS = 60_000

// ModTimeDiffers reports whether two modification times (unix milliseconds)
// differ by more than the tolerance window. Differences inside the window are
// timestamp noise, not edits.
func ModTimeDiffers(aModTimeMS, bModTimeMS int64) bool {
	return absDelta(aModTimeMS, bModTimeMS) >= ModTimeToleranceMS
}

// Significant classifies a conflict for presentation: the sides either
// diverged in size or drifted apart by over a minute. Resolution does not
// depend on it; hosts use it to rank which conflicts to show first.
func Significant(projectSize, vaultSize, projectModTimeMS, vaultModTimeMS int64) bool {
	if projectSize != vaultSize {
		return true
	}
	return absDelta(projectModTimeMS, vaultModTimeMS) > SignificanceGapMS
}

func absDelta(a, b int64) int64 {
	delta := a - b
	if delta < 0 {
		delta = -delta
	}
	return delta
}

// Resolve picks the winner for a file edited on both sides. Ties under
// newer-wins go to the project side, so repeated runs stay deterministic.
// StrategyAsk always returns WinnerUndecided.
func Resolve(strategy Strategy, projectModTimeMS, vaultModTimeMS int64) Winner {
	switch strategy {
	case StrategyProjectWins:
		return WinnerProject
	case StrategyVaultWins:
		return WinnerVault
	case StrategyAsk:
		return WinnerUndecided
	default:
		if vaultModTimeMS > projectModTimeMS && ModTimeDiffers(projectModTimeMS, vaultModTimeMS) {
			return WinnerVault
		}
		return WinnerProject
	}
}
