package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLRepo appends audit events to Postgres. Insert-only; nothing in the
// codebase updates or deletes audit_events rows.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo {
	return &SQLRepo{db: db}
}

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	query := `
		INSERT INTO audit_events (id, type, actor_user_id, actor_role, ip_address,
			call_id, call_rate_id, credit_id, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.Type, e.ActorUserID, e.ActorRole,
		e.IPAddress, e.CallID, e.CallRateID, e.CreditID, e.Message, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}
