package reporting

import (
	"context"
	"time"

	"calling-platform/internal/calls"
)

// CallStoreRepo reads reporting rows straight from the call session
// store. Summaries are bounded by sweepLimit rows per request; ranges
// larger than that should move to a dedicated aggregate table.
type CallStoreRepo struct {
	store calls.Store
}

const sweepLimit = 10000

func NewCallStoreRepo(store calls.Store) *CallStoreRepo {
	return &CallStoreRepo{store: store}
}

func (r *CallStoreRepo) ListUserCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Call, error) {
	rows, _, err := r.store.List(ctx, calls.ListFilter{
		UserID:      userID,
		CreatedFrom: from,
		CreatedTo:   to,
	}, 0, sweepLimit)
	return rows, err
}
