package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/serialship/internal/domain"
)

func TestReportFileRepository_LoadMissing(t *testing.T) {
	repo := NewReportFileRepository(t.TempDir())

	report, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.SessionID)
	assert.Empty(t, report.Outcomes)
}

func TestReportFileRepository_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	repo := NewReportFileRepository(dir)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	report := domain.SessionReport{
		SessionID: "4b1d3c2a-0000-4000-8000-000000000001",
		Name:      "mnist_unified",
		Variant:   "v2",
		Outcomes: []domain.TransferOutcome{
			domain.Completed("mnist_forest.bin", 1000),
			domain.Skipped("mnist_npd.bin", "not found"),
			{Path: "mnist_config.json", Status: domain.OutcomeFailed, Reason: "retries exhausted"},
		},
		Opened:     true,
		Closed:     true,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
	require.NoError(t, repo.Save(context.Background(), report))

	_, err := os.Stat(repo.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.SessionID, got.SessionID)
	assert.Equal(t, report.Name, got.Name)
	assert.True(t, got.StartedAt.Equal(started))
	require.Len(t, got.Outcomes, 3)
	assert.Equal(t, domain.OutcomeCompleted, got.Outcomes[0].Status)
	assert.Equal(t, uint64(1000), got.Outcomes[0].Bytes)
	assert.Equal(t, domain.OutcomeSkipped, got.Outcomes[1].Status)
	assert.Equal(t, domain.OutcomeFailed, got.Outcomes[2].Status)
	assert.False(t, got.Success())
}

func TestReportFileRepository_Overwrite(t *testing.T) {
	repo := NewReportFileRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.SessionReport{Name: "first"}))
	require.NoError(t, repo.Save(ctx, domain.SessionReport{Name: "second"}))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
}

func TestReportFileRepository_Corrupt(t *testing.T) {
	dir := t.TempDir()
	repo := NewReportFileRepository(dir)
	require.NoError(t, os.WriteFile(repo.Path(), []byte("{not json"), 0o644))

	_, err := repo.Load(context.Background())
	assert.Error(t, err)
}
