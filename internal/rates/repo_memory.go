package rates

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a simple in-memory store useful for tests.
// It mirrors the SQL store's upsert-on-active-pair semantics.
type MemoryStore struct {
	mu    sync.Mutex
	rows  []CallRate
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clock: time.Now}
}

func (m *MemoryStore) Upsert(ctx context.Context, params UpsertParams) (CallRate, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().UTC()
	for i := range m.rows {
		r := &m.rows[i]
		if r.IsDeleted || r.FromCountryCode != params.FromCountryCode || r.ToCountryCode != params.ToCountryCode {
			continue
		}
		r.FromCountryName = params.FromCountryName
		r.ToCountryName = params.ToCountryName
		r.CallRateDetail = params.Detail
		updatedBy := params.AdminID
		r.UpdatedBy = &updatedBy
		r.UpdatedAt = now
		return *r, nil
	}

	row := CallRate{
		ID:              uuid.NewString(),
		FromCountryCode: params.FromCountryCode,
		ToCountryCode:   params.ToCountryCode,
		FromCountryName: params.FromCountryName,
		ToCountryName:   params.ToCountryName,
		CallRateDetail:  params.Detail,
		CreatedBy:       params.AdminID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.rows = append(m.rows, row)
	return row, nil
}

func (m *MemoryStore) FindActive(ctx context.Context, fromCountryCode, toCountryCode string) (CallRate, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if !r.IsDeleted && r.FromCountryCode == fromCountryCode && r.ToCountryCode == toCountryCode {
			return r, true, nil
		}
	}
	return CallRate{}, false, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (CallRate, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	// Deleted rows stay readable by id: settled calls reference them.
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return CallRate{}, ErrNotFound
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter, offset, limit int) ([]CallRate, int, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []CallRate
	for _, r := range m.rows {
		if r.IsDeleted {
			continue
		}
		if filter.FromCountryCode != "" && r.FromCountryCode != filter.FromCountryCode {
			continue
		}
		if filter.ToCountryCode != "" && r.ToCountryCode != filter.ToCountryCode {
			continue
		}
		if filter.FromCountryName != "" && r.FromCountryName != filter.FromCountryName {
			continue
		}
		if filter.ToCountryName != "" && r.ToCountryName != filter.ToCountryName {
			continue
		}
		matched = append(matched, r)
	}

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *MemoryStore) SoftDelete(ctx context.Context, id, deletedBy string, now time.Time) (CallRate, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		r := &m.rows[i]
		if r.ID == id && !r.IsDeleted {
			r.IsDeleted = true
			r.DeletedAt = &now
			r.DeletedBy = &deletedBy
			r.UpdatedAt = now
			return *r, nil
		}
	}
	return CallRate{}, ErrNotFound
}
