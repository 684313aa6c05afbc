package transfer

import (
	"context"
	"errors"

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

const transferColumns = `id, old_contact_id, new_contact_id, from_location_id, to_location_id, channel,
	status, attempts, last_error, created_at, updated_at`

func (r *Repository) Open(ctx context.Context, t Transfer) (Transfer, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO location_transfers (id, old_contact_id, from_location_id, to_location_id, channel, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (old_contact_id, to_location_id)
		DO UPDATE SET updated_at = location_transfers.updated_at
		RETURNING ` + transferColumns

	row := r.pool.QueryRow(ctx, query, uuid.New(), t.OldContactID, t.FromLocationID, t.ToLocationID, t.Channel)
	return scanTransfer(row)
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM location_transfers WHERE id = $1`
	t, err := scanTransfer(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound
	}
	return t, err
}

func (r *Repository) Save(ctx context.Context, t Transfer) error {
	query := `
		UPDATE location_transfers
		SET new_contact_id = $2, status = $3, attempts = $4, last_error = $5, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, t.ID, t.NewContactID, string(t.Status), t.Attempts, t.LastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListUnfinished(ctx context.Context, limit int) ([]Transfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM location_transfers
		WHERE status NOT IN ('completed', 'failed')
		ORDER BY created_at
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		t      Transfer
		status string
	)
	err := row.Scan(&t.ID, &t.OldContactID, &t.NewContactID, &t.FromLocationID, &t.ToLocationID, &t.Channel,
		&status, &t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Transfer{}, err
	}
	t.Status = Status(status)
	return t, nil
}

var _ Store = (*Repository)(nil)
