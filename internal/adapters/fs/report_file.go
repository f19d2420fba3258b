// Package fs implements file-backed adapters.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/serialship/internal/domain"
)

const reportFileName = "last-session.json"

// ReportFileRepository implements ports.ReportRepository using a JSON file.
type ReportFileRepository struct {
	dir string
}

// NewReportFileRepository creates a new ReportFileRepository for the given directory.
func NewReportFileRepository(dir string) *ReportFileRepository {
	return &ReportFileRepository{dir: dir}
}

// Load retrieves the last saved report from disk.
// Returns an empty report and nil error if no report file exists.
func (r *ReportFileRepository) Load(ctx context.Context) (domain.SessionReport, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.SessionReport{}, nil
		}
		return domain.SessionReport{}, err
	}

	var report domain.SessionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.SessionReport{}, fmt.Errorf("decode %s: %w", r.Path(), err)
	}
	return report, nil
}

// Save persists the report atomically (write to temp file, then rename).
func (r *ReportFileRepository) Save(ctx context.Context, report domain.SessionReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the report file.
func (r *ReportFileRepository) Path() string {
	return filepath.Join(r.dir, reportFileName)
}
