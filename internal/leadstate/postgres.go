package leadstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectColumns = `
	contact_id, campus, programa, nombre_completo, telefono, email, current_step, is_complete,
	booking_sent_at, post_booking_count, score, score_tier, from_lead_form, created_at, updated_at`

// Repository is the Postgres Store. Mutations lock the row for the duration
// of a transaction so concurrent writers never lose fields.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

func (r *Repository) Get(ctx context.Context, contactID string) (State, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM lead_states WHERE contact_id = $1`, contactID)
	s, err := scanState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) GetOrCreate(ctx context.Context, contactID string) (State, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO lead_states (contact_id) VALUES ($1)
		ON CONFLICT (contact_id) DO NOTHING
	`, contactID); err != nil {
		return State{}, fmt.Errorf("create lead state: %w", err)
	}
	return r.Get(ctx, contactID)
}

func (r *Repository) Update(ctx context.Context, contactID string, partial Captured) (State, error) {
	return r.mutate(ctx, contactID, func(s *State, now time.Time) bool {
		return s.apply(partial, now)
	})
}

func (r *Repository) MarkLeadForm(ctx context.Context, contactID string) (State, error) {
	return r.mutate(ctx, contactID, func(s *State, now time.Time) bool {
		if s.FromLeadForm {
			return false
		}
		s.FromLeadForm = true
		s.UpdatedAt = now
		return true
	})
}

func (r *Repository) MarkBookingSent(ctx context.Context, contactID string, at time.Time) (State, error) {
	return r.mutate(ctx, contactID, func(s *State, now time.Time) bool {
		if s.BookingSentAt != nil {
			return false
		}
		t := at
		s.BookingSentAt = &t
		s.UpdatedAt = now
		return true
	})
}

func (r *Repository) IncrementPostBookingCount(ctx context.Context, contactID string) (State, error) {
	return r.mutate(ctx, contactID, func(s *State, now time.Time) bool {
		s.PostBookingCount++
		s.UpdatedAt = now
		return true
	})
}

func (r *Repository) SetScore(ctx context.Context, contactID string, score int, tier string) (State, error) {
	return r.mutate(ctx, contactID, func(s *State, now time.Time) bool {
		if s.Score == score && s.ScoreTier == tier {
			return false
		}
		s.Score = score
		s.ScoreTier = tier
		s.UpdatedAt = now
		return true
	})
}

func (r *Repository) Delete(ctx context.Context, contactID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM lead_states WHERE contact_id = $1`, contactID)
	return err
}

func (r *Repository) mutate(ctx context.Context, contactID string, fn func(*State, time.Time) bool) (State, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return State{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_states (contact_id) VALUES ($1)
		ON CONFLICT (contact_id) DO NOTHING
	`, contactID); err != nil {
		return State{}, fmt.Errorf("create lead state: %w", err)
	}

	s, err := scanState(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM lead_states WHERE contact_id = $1 FOR UPDATE`, contactID))
	if err != nil {
		return State{}, fmt.Errorf("lock lead state: %w", err)
	}

	if fn(&s, r.now()) {
		if _, err := tx.Exec(ctx, `
			UPDATE lead_states SET
				campus = $2, programa = $3, nombre_completo = $4, telefono = $5, email = $6,
				current_step = $7, is_complete = $8, booking_sent_at = $9, post_booking_count = $10,
				score = $11, score_tier = $12, from_lead_form = $13, updated_at = $14
			WHERE contact_id = $1
		`,
			s.ContactID, s.Captured.Campus, s.Captured.Program, s.Captured.Name, s.Captured.Phone, s.Captured.Email,
			s.CurrentStep.String(), s.IsComplete, s.BookingSentAt, s.PostBookingCount,
			s.Score, s.ScoreTier, s.FromLeadForm, s.UpdatedAt,
		); err != nil {
			return State{}, fmt.Errorf("update lead state: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return State{}, err
	}
	return s, nil
}

func scanState(row pgx.Row) (State, error) {
	var (
		s    State
		step string
	)
	err := row.Scan(
		&s.ContactID, &s.Captured.Campus, &s.Captured.Program, &s.Captured.Name, &s.Captured.Phone, &s.Captured.Email,
		&step, &s.IsComplete, &s.BookingSentAt, &s.PostBookingCount, &s.Score, &s.ScoreTier,
		&s.FromLeadForm, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return State{}, err
	}
	s.CurrentStep = ParseStep(step)
	return s, nil
}

var _ Store = (*Repository)(nil)
