package domain

import "strings"

// HasAnyExtension reports whether path ends in one of the given extensions.
func HasAnyExtension(path string, extensions []string) bool {
	if path == "" {
		return false
	}
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
