package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal   = errors.New("path traversal detected")
	ErrPathOutsideRoot = errors.New("path escapes root directory")
	ErrSymlinkEscape   = errors.New("symlink escape detected")
	ErrInvalidPath     = errors.New("invalid path")
)

var traversalPatterns = []string{
	"..",
	"%2e%2e",
	"%252e%252e",
	"..%2f",
	"%2f..",
	"..\\",
	"\\..\\",
}

// ResolveInDir joins a slash-separated key onto root and returns the
// cleaned path. The key must be relative and must not leave root, either
// lexically or through a symlink already on disk.
func ResolveInDir(root, key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) {
		return "", ErrInvalidPath
	}
	if containsTraversalPattern(key) {
		return "", ErrPathTraversal
	}
	if strings.HasPrefix(key, "/") || filepath.IsAbs(key) || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", ErrPathOutsideRoot
	}

	rootPath, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", ErrInvalidPath
	}
	target := filepath.Join(rootPath, filepath.FromSlash(key))

	if err := checkSymlinkEscape(target, rootPath); err != nil {
		return "", err
	}
	return target, nil
}

func containsTraversalPattern(path string) bool {
	lowerPath := strings.ToLower(path)
	for _, pattern := range traversalPatterns {
		if strings.Contains(lowerPath, pattern) {
			return true
		}
	}
	return false
}

func checkSymlinkEscape(target, root string) error {
	relPath, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return ErrPathOutsideRoot
	}

	// A root that is itself a symlink is trusted; only links below it count.
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolvedRoot = root
	}

	current := root
	for _, part := range strings.Split(relPath, string(os.PathSeparator)) {
		if part == "" || part == "." {
			continue
		}
		current = filepath.Join(current, part)

		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return ErrInvalidPath
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}

		resolved, err := filepath.EvalSymlinks(current)
		if err != nil {
			return ErrSymlinkEscape
		}
		if resolved != resolvedRoot && !strings.HasPrefix(resolved, resolvedRoot+string(os.PathSeparator)) {
			return ErrSymlinkEscape
		}
	}
	return nil
}
