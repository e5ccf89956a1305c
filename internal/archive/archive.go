// Package archive exports signed artifacts to long-term storage.
package archive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/config"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/metrics"
)

// Exporter stores an artifact under key.
type Exporter interface {
	Name() string
	Export(ctx context.Context, key string, artifact []byte) error
}

// New builds the configured exporter wrapped in a circuit breaker. The
// "none" backend returns nil.
func New(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (Exporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var inner Exporter
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "local":
		inner = NewLocal(cfg.Dir)
	case "s3":
		s3x, err := NewS3(ctx, cfg.S3, logger)
		if err != nil {
			return nil, err
		}
		inner = s3x
	default:
		return nil, apperrors.ErrConfigInvalid.Withf("unknown archive backend %q", cfg.Backend)
	}

	return NewBreaker(inner, BreakerSettings{
		MaxFailures: uint32(max(cfg.Breaker.MaxFailures, 1)),
		OpenTimeout: time.Duration(cfg.Breaker.OpenTimeoutSeconds) * time.Second,
	}, logger), nil
}

// instrumented records every export outcome.
type instrumented struct {
	Exporter
}

func (i instrumented) Export(ctx context.Context, key string, artifact []byte) error {
	err := i.Exporter.Export(ctx, key, artifact)
	metrics.RecordArchiveExport(i.Name(), err == nil)
	return err
}
