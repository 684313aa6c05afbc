package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetOrCreate(ctx context.Context, contactID, locationID, channel string) (Conversation, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (contact_id, location_id, channel)
		VALUES ($1, $2, $3)
		ON CONFLICT (contact_id) DO NOTHING
	`, contactID, locationID, channel); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return r.Get(ctx, contactID)
}

func (r *Repository) Get(ctx context.Context, contactID string) (Conversation, error) {
	var c Conversation
	err := r.pool.QueryRow(ctx, `
		SELECT contact_id, location_id, channel, status, human_active, last_handoff_at, created_at, updated_at
		FROM conversations
		WHERE contact_id = $1
	`, contactID).Scan(
		&c.ContactID, &c.LocationID, &c.Channel, &c.Status, &c.HumanActive, &c.LastHandoffAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return c, err
}

func (r *Repository) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	meta := msg.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Message{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, contact_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		RETURNING created_at
	`, msg.ID, msg.ContactID, string(msg.Role), msg.Content, metaJSON, nullTime(msg.CreatedAt)).Scan(&msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE contact_id = $1`, msg.ContactID, msg.CreatedAt); err != nil {
		return Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (r *Repository) History(ctx context.Context, contactID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, contact_id, role, content, metadata, created_at FROM (
			SELECT id, contact_id, role, content, metadata, created_at
			FROM messages
			WHERE contact_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, contactID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m        Message
			role     string
			metaJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.ContactID, &role, &m.Content, &metaJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &m.Metadata)
		}
		items = append(items, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) SetHumanActive(ctx context.Context, contactID string) error {
	return r.exec(ctx, `UPDATE conversations SET human_active = TRUE, updated_at = now() WHERE contact_id = $1`, contactID)
}

func (r *Repository) StampHandoff(ctx context.Context, contactID string, at time.Time) error {
	return r.exec(ctx, `UPDATE conversations SET last_handoff_at = $2, updated_at = now() WHERE contact_id = $1`, contactID, at)
}

// Migrate moves the conversation, its messages and its lead state to the new
// contact id in one transaction.
func (r *Repository) Migrate(ctx context.Context, oldContactID, newContactID, toLocationID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO conversations (contact_id, location_id, channel, status, human_active, last_handoff_at, created_at, updated_at)
		SELECT $2, $3, channel, status, human_active, last_handoff_at, created_at, now()
		FROM conversations
		WHERE contact_id = $1
		ON CONFLICT (contact_id) DO UPDATE SET location_id = EXCLUDED.location_id, updated_at = now()
	`, oldContactID, newContactID, toLocationID)
	if err != nil {
		return fmt.Errorf("copy conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `UPDATE messages SET contact_id = $2 WHERE contact_id = $1`, oldContactID, newContactID); err != nil {
		return fmt.Errorf("move messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM conversations WHERE contact_id = $1`, oldContactID); err != nil {
		return fmt.Errorf("delete old conversation: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_states (
			contact_id, campus, programa, nombre_completo, telefono, email, current_step, is_complete,
			booking_sent_at, post_booking_count, score, score_tier, from_lead_form, created_at, updated_at
		)
		SELECT $2, campus, programa, nombre_completo, telefono, email, current_step, is_complete,
			booking_sent_at, post_booking_count, score, score_tier, from_lead_form, created_at, now()
		FROM lead_states
		WHERE contact_id = $1
		ON CONFLICT (contact_id) DO NOTHING
	`, oldContactID, newContactID); err != nil {
		return fmt.Errorf("copy lead state: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM lead_states WHERE contact_id = $1`, oldContactID); err != nil {
		return fmt.Errorf("delete old lead state: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Store = (*Repository)(nil)
