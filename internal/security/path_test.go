package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInDir(t *testing.T) {
	root := t.TempDir()

	got, err := ResolveInDir(root, "2025/03/ddt-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2025", "03", "ddt-1.pdf"), got)
}

func TestResolveInDirRejects(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		key  string
		want error
	}{
		{"empty", "", ErrInvalidPath},
		{"null byte", "a\x00b.pdf", ErrInvalidPath},
		{"parent", "../escape.pdf", ErrPathTraversal},
		{"nested parent", "a/../../escape.pdf", ErrPathTraversal},
		{"encoded", "%2e%2e/escape.pdf", ErrPathTraversal},
		{"absolute", "/etc/passwd", ErrPathOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveInDir(root, tt.key)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveInDirSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := ResolveInDir(root, "link/ddt.pdf")
	assert.ErrorIs(t, err, ErrSymlinkEscape)
}

func TestResolveInDirSymlinkInside(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0755))

	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := ResolveInDir(root, "alias/ddt.pdf")
	assert.NoError(t, err)
}
