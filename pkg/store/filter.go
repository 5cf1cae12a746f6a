package store

import "strings"

// matchesFileTypes reports whether the filename passes the suffix filter.
// An empty filter admits every file. Each configured suffix is checked
// independently and in full against the filename, so a compound suffix like
// ".excalidraw.md" only matches files actually carrying both parts, while a
// simple ".md" matches any Markdown file including compound ones.
func matchesFileTypes(fileName string, fileTypes []string) bool {
	if len(fileTypes) == 0 {
		return true
	}
	lowerName := strings.ToLower(fileName)
	for _, suffix := range fileTypes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix == "" {
			continue
		}
		if !strings.HasPrefix(suffix, ".") {
			suffix = "." + suffix
		}
		if strings.HasSuffix(lowerName, suffix) {
			return true
		}
	}
	return false
}
