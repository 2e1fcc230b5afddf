package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/estimator/internal/model"
)

// ErrNotFound is returned when no estimate has the requested ID.
var ErrNotFound = eris.New("store: estimate not found")

// EstimateFilter specifies criteria for listing estimates.
type EstimateFilter struct {
	Provider string `json:"provider,omitempty"`
	JobName  string `json:"job_name,omitempty"` // substring match
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store persists estimates so they can be exported again after the request
// that produced them has finished.
type Store interface {
	// SaveEstimate inserts or replaces an estimate. A missing ID and
	// CreatedAt are filled in before writing.
	SaveEstimate(ctx context.Context, est *model.Estimate) error
	GetEstimate(ctx context.Context, id string) (*model.Estimate, error)
	// ListEstimates returns estimates newest first.
	ListEstimates(ctx context.Context, filter EstimateFilter) ([]model.Estimate, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func prepareEstimate(est *model.Estimate) {
	if est.ID == "" {
		est.ID = uuid.New().String()
	}
	if est.CreatedAt.IsZero() {
		est.CreatedAt = time.Now().UTC()
	}
}

func listLimit(filter EstimateFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}
