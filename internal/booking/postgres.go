package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const advisorColumns = `id, location_id, name, booking_link, crm_user_id, active, assigned_count, last_assigned_at, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) NextForLocation(ctx context.Context, locationID string) (Advisor, error) {
	a, err := scanAdvisor(r.pool.QueryRow(ctx, `
		UPDATE advisors
		SET assigned_count = assigned_count + 1, last_assigned_at = now()
		WHERE id = (
			SELECT id FROM advisors
			WHERE location_id = $1 AND active
			ORDER BY assigned_count ASC, last_assigned_at ASC NULLS FIRST, created_at ASC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING `+advisorColumns, locationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Advisor{}, ErrNoAdvisorAvailable
	}
	return a, err
}

func (r *Repository) FindByCRMUser(ctx context.Context, locationID, crmUserID string) (Advisor, error) {
	a, err := scanAdvisor(r.pool.QueryRow(ctx, `
		SELECT `+advisorColumns+`
		FROM advisors
		WHERE location_id = $1 AND crm_user_id = $2 AND active
		ORDER BY created_at ASC
		LIMIT 1
	`, locationID, crmUserID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Advisor{}, ErrAdvisorNotFound
	}
	return a, err
}

func (r *Repository) ListByLocation(ctx context.Context, locationID string) ([]Advisor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+advisorColumns+`
		FROM advisors
		WHERE $1 = '' OR location_id = $1
		ORDER BY location_id, created_at ASC
	`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Advisor, 0)
	for rows.Next() {
		a, err := scanAdvisor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) Upsert(ctx context.Context, a Advisor) (Advisor, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return scanAdvisor(r.pool.QueryRow(ctx, `
		INSERT INTO advisors (id, location_id, name, booking_link, crm_user_id, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (location_id, booking_link) DO UPDATE
		SET name = EXCLUDED.name, crm_user_id = EXCLUDED.crm_user_id, active = EXCLUDED.active
		RETURNING `+advisorColumns,
		a.ID, a.LocationID, a.Name, a.BookingLink, a.CRMUserID, a.Active))
}

func scanAdvisor(row pgx.Row) (Advisor, error) {
	var a Advisor
	err := row.Scan(&a.ID, &a.LocationID, &a.Name, &a.BookingLink, &a.CRMUserID, &a.Active, &a.AssignedCount, &a.LastAssignedAt, &a.CreatedAt)
	return a, err
}

var _ AdvisorStore = (*Repository)(nil)
