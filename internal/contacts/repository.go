package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("contacts: not found")

// Store abstracts contact persistence.
type Store interface {
	GetByID(ctx context.Context, id string) (Contact, error)
	FindByNumber(ctx context.Context, phoneNumber string) (Contact, bool, error)

	// FindOrCreate returns the existing contact for the number or
	// inserts a fresh unverified one; the lookup-or-insert is atomic.
	FindOrCreate(ctx context.Context, phoneNumber, countryCode, name string) (Contact, error)
}

const contactColumns = `id, name, phone_number, country_code, sid, is_deleted, deleted_at, created_at, updated_at`

type SQLStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, clock: time.Now}
}

func scanContact(row interface{ Scan(dest ...any) error }) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.CountryCode, &c.SID,
		&c.IsDeleted, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND NOT is_deleted`
	c, err := scanContact(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("getting contact: %w", err)
	}
	return c, nil
}

func (s *SQLStore) FindByNumber(ctx context.Context, phoneNumber string) (Contact, bool, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE phone_number = $1 AND NOT is_deleted`
	c, err := scanContact(s.db.QueryRowContext(ctx, query, phoneNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, fmt.Errorf("finding contact by number: %w", err)
	}
	return c, true, nil
}

func (s *SQLStore) FindOrCreate(ctx context.Context, phoneNumber, countryCode, name string) (Contact, error) {
	now := s.clock().UTC()
	query := `
		INSERT INTO contacts (id, name, phone_number, country_code, sid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', $5, $5)
		ON CONFLICT (phone_number) WHERE NOT is_deleted DO UPDATE SET updated_at = contacts.updated_at
		RETURNING ` + contactColumns
	c, err := scanContact(s.db.QueryRowContext(ctx, query, uuid.NewString(), name, phoneNumber, countryCode, now))
	if err != nil {
		return Contact{}, fmt.Errorf("upserting contact: %w", err)
	}
	return c, nil
}
