package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/estimator/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleEstimate(name, provider string, created time.Time) *model.Estimate {
	return &model.Estimate{
		Job:      model.Job{Name: name, ShootDays: 2, EditDays: 3},
		Provider: provider,
		Items: []model.LineItem{
			{Category: model.CategoryShooting, Task: "カメラマン", Quantity: 2, Unit: model.UnitDay, UnitPrice: 80000, Subtotal: 160000},
			{Category: model.CategoryManagementFee, Task: "管理費（固定）", Quantity: 1, Unit: model.UnitLot, UnitPrice: 24000, Subtotal: 24000},
		},
		Totals: model.Totals{
			RushCoefficient:        1,
			SubtotalExclManagement: 160000,
			ManagementFeeFinal:     24000,
			TaxableSubtotal:        184000,
			Tax:                    18400,
			Total:                  202400,
		},
		BaseDays:   10,
		TargetDays: 30,
		Warnings:   []string{"notes mention drone"},
		CreatedAt:  created,
	}
}

func TestSQLite_SaveAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	est := sampleEstimate("会社紹介動画", "anthropic", time.Time{})
	require.NoError(t, s.SaveEstimate(ctx, est))
	assert.NotEmpty(t, est.ID)
	assert.False(t, est.CreatedAt.IsZero())

	got, err := s.GetEstimate(ctx, est.ID)
	require.NoError(t, err)
	assert.Equal(t, est.ID, got.ID)
	assert.Equal(t, "会社紹介動画", got.Job.Name)
	assert.Equal(t, est.Items, got.Items)
	assert.Equal(t, est.Totals, got.Totals)
	assert.Equal(t, est.Warnings, got.Warnings)
}

func TestSQLite_SaveReplaces(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	est := sampleEstimate("採用動画", "openai", time.Time{})
	require.NoError(t, s.SaveEstimate(ctx, est))

	est.Totals.Total = 1
	est.Items = est.Items[:1]
	require.NoError(t, s.SaveEstimate(ctx, est))

	got, err := s.GetEstimate(ctx, est.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Totals.Total)
	assert.Len(t, got.Items, 1)

	all, err := s.ListEstimates(ctx, EstimateFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_GetNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetEstimate(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListEstimates(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveEstimate(ctx, sampleEstimate("商品PR 春", "anthropic", base)))
	require.NoError(t, s.SaveEstimate(ctx, sampleEstimate("採用動画", "openai", base.Add(time.Hour))))
	require.NoError(t, s.SaveEstimate(ctx, sampleEstimate("商品PR 夏", "gemini", base.Add(2*time.Hour))))

	all, err := s.ListEstimates(ctx, EstimateFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "商品PR 夏", all[0].Job.Name, "newest first")
	assert.Equal(t, "商品PR 春", all[2].Job.Name)

	byProvider, err := s.ListEstimates(ctx, EstimateFilter{Provider: "openai"})
	require.NoError(t, err)
	require.Len(t, byProvider, 1)
	assert.Equal(t, "採用動画", byProvider[0].Job.Name)

	byName, err := s.ListEstimates(ctx, EstimateFilter{JobName: "商品PR"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	page, err := s.ListEstimates(ctx, EstimateFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "採用動画", page[0].Job.Name)
}

func TestSQLite_Ping(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNewSQLite_BadPath(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}
