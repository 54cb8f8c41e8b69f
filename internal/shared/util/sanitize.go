package util

import (
	"errors"
	"path"
	"strings"
)

// CleanKey normalizes an object key to forward slashes and rejects traversal patterns.
func CleanKey(key string) (string, error) {
	s := strings.TrimSpace(key)
	s = strings.ReplaceAll(s, "\\", "/")
	if s == "" {
		return "", errors.New("invalid object key")
	}
	for _, part := range strings.Split(s, "/") {
		if part == ".." {
			return "", errors.New("invalid object key")
		}
	}
	cleaned := strings.TrimLeft(path.Clean("/"+s), "/")
	if cleaned == "" {
		return "", errors.New("invalid object key")
	}
	return cleaned, nil
}
