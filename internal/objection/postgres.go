package objection

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) LoadActive(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, category, keywords, response_template, priority, redirect_to_booking, active
		FROM objection_entries
		WHERE active
		ORDER BY priority DESC, category ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Category, &e.Keywords, &e.ResponseTemplate, &e.Priority, &e.RedirectToBooking, &e.Active); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// Upsert inserts or replaces the entry with the same category.
func (r *Repository) Upsert(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO objection_entries (id, category, keywords, response_template, priority, redirect_to_booking, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (category) DO UPDATE SET
			keywords = EXCLUDED.keywords,
			response_template = EXCLUDED.response_template,
			priority = EXCLUDED.priority,
			redirect_to_booking = EXCLUDED.redirect_to_booking,
			active = EXCLUDED.active
	`, e.ID, e.Category, e.Keywords, e.ResponseTemplate, e.Priority, e.RedirectToBooking, e.Active)
	return err
}

var _ Loader = (*Repository)(nil)
