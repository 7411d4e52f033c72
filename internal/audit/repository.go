package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists and reads audit events.
type Repository interface {
	InsertEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error)
}

// PGRepository implements Repository over PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// InsertEvent appends one event to the trail.
func (r *PGRepository) InsertEvent(ctx context.Context, e Event) error {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_events (at, actor, action, entity, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		at, e.Actor, e.Action, e.Entity, e.EntityID, e.Detail)
	return err
}

// ListEvents returns events newest first, narrowed by the filters.
// Empty filter fields match everything.
func (r *PGRepository) ListEvents(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, at, actor, action, entity, entity_id, detail
		FROM audit_events
		WHERE ($1::timestamptz IS NULL OR at >= $1)
		  AND ($2::timestamptz IS NULL OR at <= $2)
		  AND ($3 = '' OR actor = $3)
		  AND ($4 = '' OR entity = $4)
		  AND ($5 = '' OR action = $5)
		ORDER BY at DESC, id DESC
		LIMIT $6 OFFSET $7`,
		nullableTime(filters.From), nullableTime(filters.To),
		filters.Actor, filters.Entity, filters.Action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.At, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &e.Detail); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
