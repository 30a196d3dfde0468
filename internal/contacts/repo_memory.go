package contacts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps contacts in process memory. It mirrors SQLStore
// semantics and backs tests that do not need Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	contacts []Contact
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{clock: time.Now}
}

// Seed inserts a pre-built contact, bypassing FindOrCreate defaults.
func (m *MemoryStore) Seed(c Contact) Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.contacts = append(m.contacts, c)
	return c
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.ID == id && !c.IsDeleted {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

func (m *MemoryStore) FindByNumber(ctx context.Context, phoneNumber string) (Contact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.PhoneNumber == phoneNumber && !c.IsDeleted {
			return c, true, nil
		}
	}
	return Contact{}, false, nil
}

func (m *MemoryStore) FindOrCreate(ctx context.Context, phoneNumber, countryCode, name string) (Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.PhoneNumber == phoneNumber && !c.IsDeleted {
			return c, nil
		}
	}
	now := m.clock().UTC()
	c := Contact{
		ID:          uuid.NewString(),
		Name:        name,
		PhoneNumber: phoneNumber,
		CountryCode: countryCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.contacts = append(m.contacts, c)
	return c, nil
}
