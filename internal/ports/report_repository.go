package ports

import (
	"context"

	"github.com/bft-labs/serialship/internal/domain"
)

// ReportRepository persists the outcome of transfer sessions.
type ReportRepository interface {
	// Save persists the report atomically.
	Save(ctx context.Context, report domain.SessionReport) error

	// Load returns the most recently saved report.
	// Returns an empty report and nil error if none exists.
	Load(ctx context.Context) (domain.SessionReport, error)
}
