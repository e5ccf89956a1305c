package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/security"
)

// Local writes artifacts below a directory.
type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Export(ctx context.Context, key string, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := security.ResolveInDir(l.dir, key)
	if err != nil {
		return apperrors.ErrBadRequest.Withf("artifact key %q escapes the archive", key).With(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(artifact); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
