package store

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/driftsync/driftsync/pkg/plog"
)

type exclusionMatchType int

const (
	segmentMatch exclusionMatchType = iota
	globMatch
)

// exclusion stores one pre-analyzed pattern.
type exclusion struct {
	pattern   string
	matchType exclusionMatchType
}

// exclusionSet holds the categorized exclusion patterns for matching during
// a tree walk. Plain patterns exclude any path with a segment matching them
// exactly or by substring; the substring rule is intentionally permissive so
// that a single pattern like "build" excludes every path containing that
// segment. Patterns with glob metacharacters match against the whole
// normalized relative path instead.
type exclusionSet struct {
	exclusions []exclusion
}

// makeExclusionSet analyzes and categorizes patterns for matching later.
func makeExclusionSet(patterns []string) exclusionSet {
	set := exclusionSet{exclusions: make([]exclusion, 0, len(patterns))}
	for _, p := range patterns {
		p = normalizeExclusionPattern(p)
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[]{}") {
			set.exclusions = append(set.exclusions, exclusion{pattern: p, matchType: globMatch})
		} else {
			set.exclusions = append(set.exclusions, exclusion{pattern: p, matchType: segmentMatch})
		}
	}
	return set
}

// matches checks whether the given relative path key is excluded.
func (es *exclusionSet) matches(relPathKey string) bool {
	if len(es.exclusions) == 0 {
		return false
	}

	normalizedPath := normalizeExclusionPattern(relPathKey)
	segments := strings.Split(normalizedPath, "/")

	for _, e := range es.exclusions {
		switch e.matchType {
		case segmentMatch:
			for _, seg := range segments {
				if seg == e.pattern || strings.Contains(seg, e.pattern) {
					return true
				}
			}
		case globMatch:
			match, err := doublestar.Match(e.pattern, normalizedPath)
			if err != nil {
				// Log the invalid pattern but continue checking others.
				plog.Warn("Invalid exclusion pattern", "pattern", e.pattern, "error", err)
				continue
			}
			if match {
				return true
			}
		}
	}
	return false
}

// normalizeExclusionPattern converts a path or pattern into a standardized,
// case-insensitive key format (forward slashes, lowercase).
func normalizeExclusionPattern(p string) string {
	return strings.ToLower(filepath.ToSlash(strings.TrimSpace(p)))
}
