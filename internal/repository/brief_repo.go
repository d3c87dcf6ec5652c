package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"briefd/internal/model"
)

type BriefRepository struct {
	db *pgxpool.Pool
}

func NewBriefRepository(db *pgxpool.Pool) *BriefRepository {
	return &BriefRepository{db: db}
}

const briefColumns = `
	id, owner_id, criteria, frequency, schedule_time, schedule_day_of_week,
	timezone, last_executed_at, queued_at, status, created_at
`

func (r *BriefRepository) Create(ctx context.Context, b *model.Brief) error {
	var day *int
	if b.ScheduleDay != nil {
		d := int(*b.ScheduleDay)
		day = &d
	}
	query := `
        INSERT INTO briefs (
            id, owner_id, criteria, frequency, schedule_time,
            schedule_day_of_week, timezone, status, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
    `
	_, err := r.db.Exec(ctx, query,
		b.ID, b.OwnerID, b.Criteria, b.Frequency, b.ScheduleTime, day,
		b.Timezone, b.Status,
	)
	return err
}

func (r *BriefRepository) FindByID(ctx context.Context, id string) (*model.Brief, error) {
	query := `SELECT ` + briefColumns + ` FROM briefs WHERE id = $1`
	return scanBrief(r.db.QueryRow(ctx, query, id))
}

// ListActive returns briefs eligible for due evaluation. PAUSED briefs never
// run; QUEUED briefs are already in flight, which is the double-queue guard.
func (r *BriefRepository) ListActive(ctx context.Context) ([]model.Brief, error) {
	query := `SELECT ` + briefColumns + ` FROM briefs WHERE status = 'ACTIVE'`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var briefs []model.Brief
	for rows.Next() {
		b, err := scanBrief(rows)
		if err != nil {
			return nil, err
		}
		briefs = append(briefs, *b)
	}
	return briefs, rows.Err()
}

// MarkQueued performs the atomic ACTIVE -> QUEUED transition.
func (r *BriefRepository) MarkQueued(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE briefs
        SET status = 'QUEUED', queued_at = $2
        WHERE id = $1 AND status = 'ACTIVE'
    `, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FinishExecution stamps the lookback anchor and reopens the brief for the
// next scheduling window.
func (r *BriefRepository) FinishExecution(ctx context.Context, id string, executedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
        UPDATE briefs
        SET status = 'ACTIVE', last_executed_at = $2, queued_at = NULL
        WHERE id = $1 AND status = 'QUEUED'
    `, id, executedAt)
	return err
}

// ResetQueued reopens a brief after a failed execution without moving the
// lookback anchor.
func (r *BriefRepository) ResetQueued(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE briefs
        SET status = 'ACTIVE', queued_at = NULL
        WHERE id = $1 AND status = 'QUEUED'
    `, id)
	return err
}

// ResetStuckQueued reopens briefs whose execution was lost (worker crash
// between queueing and completion).
func (r *BriefRepository) ResetStuckQueued(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE briefs
        SET status = 'ACTIVE', queued_at = NULL
        WHERE status = 'QUEUED' AND queued_at < $1
    `, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *BriefRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM briefs WHERE id = $1`, id)
	return err
}

func scanBrief(row rowScanner) (*model.Brief, error) {
	var b model.Brief
	var day *int
	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.Criteria,
		&b.Frequency,
		&b.ScheduleTime,
		&day,
		&b.Timezone,
		&b.LastExecutedAt,
		&b.QueuedAt,
		&b.Status,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if day != nil {
		d := time.Weekday(*day)
		b.ScheduleDay = &d
	}
	return &b, nil
}
