package calls

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps call sessions in process memory, mirroring SQLStore
// semantics for tests. DebitFunc stands in for the ledger debit that the
// SQL store performs inside the settlement transaction; a nil DebitFunc
// approves every debit.
type MemoryStore struct {
	mu    sync.Mutex
	calls []*Call
	clock func() time.Time

	DebitFunc func(creditID string, amount decimal.Decimal) bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clock: time.Now}
}

func (m *MemoryStore) FindOrCreatePending(ctx context.Context, params PendingParams) (Call, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.CallerID == params.CallerID && c.ReceiverID == params.ReceiverID &&
			c.Status == StatusPending && c.SID == "" &&
			!c.IsDeletedByCaller && !c.IsDeletedByReceiver {
			return *c, false, nil
		}
	}
	now := m.clock().UTC()
	c := &Call{
		ID:             uuid.NewString(),
		CallerID:       params.CallerID,
		ReceiverID:     params.ReceiverID,
		CallerDetail:   params.CallerDetail,
		ReceiverDetail: params.ReceiverDetail,
		Status:         StatusPending,
		CallRateID:     params.CallRateID,
		ProviderRate:   params.ProviderRate,
		CreditUsedID:   params.CreditUsedID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.CallRateDetail != nil {
		detail := *params.CallRateDetail
		c.CallRateDetail = &detail
	}
	m.calls = append(m.calls, c)
	return *c, true, nil
}

func (m *MemoryStore) SetSID(ctx context.Context, id, sid string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.find(id)
	if c == nil || c.SettledAt != nil {
		return Call{}, ErrNotFound
	}
	c.SID = sid
	c.UpdatedAt = m.clock().UTC()
	return *c, nil
}

func (m *MemoryStore) UpdateProgress(ctx context.Context, id string, params ProgressParams) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.find(id)
	if c == nil || c.SettledAt != nil {
		return Call{}, ErrNotFound
	}
	c.Status = params.Status
	c.SID = params.SID
	if params.StartedAt != nil {
		c.StartedAt = params.StartedAt
	}
	c.UpdatedAt = m.clock().UTC()
	return *c, nil
}

func (m *MemoryStore) Settle(ctx context.Context, id string, params SettleParams) (SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.find(id)
	if c == nil {
		return SettleResult{}, ErrNotFound
	}
	if c.SettledAt != nil {
		return SettleResult{AlreadySettled: true}, nil
	}

	debitApplied := false
	if params.CreditAmountUsed.IsPositive() && c.CreditUsedID != "" {
		if m.DebitFunc == nil || m.DebitFunc(c.CreditUsedID, params.CreditAmountUsed) {
			debitApplied = true
		}
	}

	now := m.clock().UTC()
	c.Status = params.Status
	c.SID = params.SID
	c.StartedAt = params.StartedAt
	c.EndedAt = params.EndedAt
	c.ProviderTotalPrice = params.ProviderTotalPrice
	c.CreditAmountUsed = params.CreditAmountUsed
	c.DebitSkipped = params.CreditAmountUsed.IsPositive() && !debitApplied
	c.SettledAt = &now
	c.UpdatedAt = now
	return SettleResult{Call: *c, DebitApplied: debitApplied}, nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.find(id)
	if c == nil || c.SettledAt != nil {
		return nil
	}
	c.Status = StatusFailed
	c.UpdatedAt = m.clock().UTC()
	return nil
}

func (m *MemoryStore) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var swept int64
	now := m.clock().UTC()
	for _, c := range m.calls {
		if c.Status == StatusPending && c.SID == "" && c.CreatedAt.Before(cutoff) {
			c.Status = StatusFailed
			c.UpdatedAt = now
			swept++
		}
	}
	return swept, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.find(id)
	if c == nil {
		return Call{}, ErrNotFound
	}
	return *c, nil
}

func (m *MemoryStore) FindBySID(ctx context.Context, sid string) (Call, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Call
	for _, c := range m.calls {
		if c.SID == sid && (latest == nil || c.CreatedAt.After(latest.CreatedAt)) {
			latest = c
		}
	}
	if latest == nil {
		return Call{}, false, nil
	}
	return *latest, true, nil
}

func (m *MemoryStore) FindPendingByNumbers(ctx context.Context, callerNumber, receiverNumber string) (Call, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Call
	for _, c := range m.calls {
		if c.Status == StatusPending && c.SID == "" &&
			c.CallerDetail.PhoneNumber == callerNumber && c.ReceiverDetail.PhoneNumber == receiverNumber &&
			!c.IsDeletedByCaller && !c.IsDeletedByReceiver &&
			(latest == nil || c.CreatedAt.After(latest.CreatedAt)) {
			latest = c
		}
	}
	if latest == nil {
		return Call{}, false, nil
	}
	return *latest, true, nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter, offset, limit int) ([]Call, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []Call
	for _, c := range m.calls {
		if filter.UserID != "" {
			asCaller := c.CallerID == filter.UserID && !c.IsDeletedByCaller
			asReceiver := c.ReceiverID == filter.UserID && !c.IsDeletedByReceiver
			if !asCaller && !asReceiver {
				continue
			}
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.SID != "" && !strings.EqualFold(c.SID, filter.SID) {
			continue
		}
		if !filter.CreatedFrom.IsZero() && c.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && c.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		matched = append(matched, *c)
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

func (m *MemoryStore) find(id string) *Call {
	for _, c := range m.calls {
		if c.ID == id {
			return c
		}
	}
	return nil
}
