package session

import (
	"github.com/gmsas95/ddtscan/internal/config"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// Budget bounds what one session may hold: accumulated encoded pages plus
// the decoded buffers of the page in flight.
type Budget struct {
	MaxPages int
	MaxBytes int64
}

func DefaultBudget() Budget {
	return Budget{MaxPages: 40, MaxBytes: 256 << 20}
}

func BudgetFromConfig(cfg config.ScannerConfig) Budget {
	return Budget{MaxPages: cfg.MaxPages, MaxBytes: int64(cfg.MaxSessionMB) << 20}
}

func (b Budget) checkPages(n int) error {
	if b.MaxPages > 0 && n > b.MaxPages {
		return apperrors.ErrBudgetExceeded.Withf("%d pages exceeds limit %d", n, b.MaxPages)
	}
	return nil
}

func (b Budget) checkBytes(n int64) error {
	if b.MaxBytes > 0 && n > b.MaxBytes {
		return apperrors.ErrBudgetExceeded.Withf("%d bytes exceeds limit %d", n, b.MaxBytes)
	}
	return nil
}
