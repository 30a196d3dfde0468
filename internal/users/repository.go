package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

var ErrNotFound = errors.New("users: not found")

type Store interface {
	GetByID(ctx context.Context, id string) (User, error)
	FindByNumber(ctx context.Context, phoneNumber string) (User, bool, error)
}

const userColumns = `id, name, email, phone_number, country_code, contact_id, COALESCE(credit_id, ''), role, created_at, updated_at`

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PhoneNumber, &u.CountryCode,
		&u.ContactID, &u.CreditID, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) FindByNumber(ctx context.Context, phoneNumber string) (User, bool, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone_number = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, phoneNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("finding user by number: %w", err)
	}
	return u, true, nil
}

// MemoryStore backs tests that do not need Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (m *MemoryStore) Seed(u User) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return u
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) FindByNumber(ctx context.Context, phoneNumber string) (User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PhoneNumber == phoneNumber {
			return u, true, nil
		}
	}
	return User{}, false, nil
}
