package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BaseName reduces a resource name taken from a container to its last
// element. Both slash and backslash separate elements, since container
// formats carry names from either convention. It returns "" when nothing
// usable remains (empty names, ".", "..").
func BaseName(name string) string {
	name = strings.TrimRight(strings.ReplaceAll(name, "\\", "/"), "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return ""
	}
	return name
}

// SecureJoin joins path elements and ensures the result stays within the
// base directory.
//
// Example usage:
//
//	safePath, err := SecureJoin("/var/extract", filename)
//	if err != nil {
//		return fmt.Errorf("invalid path combination: %w", err)
//	}
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) &&
		fullPath != cleanBase {
		return "", fmt.Errorf("path %q escapes base directory %s", filepath.Join(elements...), base)
	}

	return fullPath, nil
}
