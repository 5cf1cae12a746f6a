package store

import (
	"path/filepath"
	"strings"
)

// PathFilter applies the listing rules of ListOptions to individual paths,
// for callers that see paths one at a time instead of walking a tree (the
// change watcher). Keeping this next to the walk guarantees both agree on
// what is excluded.
type PathFilter struct {
	opts     ListOptions
	excludes exclusionSet
}

// NewPathFilter compiles the options once for repeated matching.
func NewPathFilter(opts ListOptions) *PathFilter {
	return &PathFilter{
		opts:     opts,
		excludes: makeExclusionSet(opts.ExcludePatterns),
	}
}

// SkipsDir reports whether a directory at the given relative key would be
// pruned during a walk, either as a system directory or by exclusion.
func (f *PathFilter) SkipsDir(relPathKey string) bool {
	for _, segment := range strings.Split(relPathKey, "/") {
		if _, system := systemExcludeDirNames[segment]; system {
			return true
		}
	}
	return f.excludes.matches(relPathKey)
}

// AdmitsFile reports whether a file at the given relative key would appear
// in a listing: no excluded or system segment on its path and a matching
// suffix.
func (f *PathFilter) AdmitsFile(relPathKey string) bool {
	dir := filepath.ToSlash(filepath.Dir(relPathKey))
	if dir != "." && f.SkipsDir(dir) {
		return false
	}
	if f.excludes.matches(relPathKey) {
		return false
	}
	return matchesFileTypes(filepath.Base(relPathKey), f.opts.FileTypes)
}
