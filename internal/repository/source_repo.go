package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"briefd/internal/model"
)

type SourceRepository struct {
	db *pgxpool.Pool
}

func NewSourceRepository(db *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{db: db}
}

const sourceColumns = `
	id, brief_id, type, name, status, fetch_status, url, etag, last_modified,
	refresh_interval_minutes, queued_at, fetch_started_at, last_fetched_at,
	last_error, email_address, created_at
`

func (r *SourceRepository) Create(ctx context.Context, s *model.Source) error {
	query := `
        INSERT INTO sources (
            id, brief_id, type, name, status, fetch_status, url, etag,
            last_modified, refresh_interval_minutes, email_address, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), NOW())
    `
	_, err := r.db.Exec(ctx, query,
		s.ID, s.BriefID, s.Type, s.Name, s.Status, s.FetchStatus, s.URL,
		s.ETag, s.LastModified, s.RefreshIntervalMinutes, s.EmailAddress,
	)
	return err
}

func (r *SourceRepository) FindByID(ctx context.Context, id string) (*model.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// FindByEmailAddress routes an inbound email token to its owning source.
func (r *SourceRepository) FindByEmailAddress(ctx context.Context, address string) (*model.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE email_address = $1`
	return r.scanOne(ctx, query, address)
}

// ExistsByBriefAndURL enforces the (brief, url) uniqueness for non-EMAIL sources.
func (r *SourceRepository) ExistsByBriefAndURL(ctx context.Context, briefID, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sources WHERE brief_id = $1 AND url = $2 AND type <> 'EMAIL')`,
		briefID, url,
	).Scan(&exists)
	return exists, err
}

func (r *SourceRepository) ListByBrief(ctx context.Context, briefID string) ([]model.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE brief_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, briefID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

// ListDue selects sources eligible for a fetch cycle: ACTIVE, fetch lock
// IDLE, never EMAIL (passive only), and either never fetched or past their
// refresh interval.
func (r *SourceRepository) ListDue(ctx context.Context, now time.Time) ([]model.Source, error) {
	query := `
        SELECT ` + sourceColumns + `
        FROM sources
        WHERE status = 'ACTIVE'
          AND fetch_status = 'IDLE'
          AND type <> 'EMAIL'
          AND refresh_interval_minutes > 0
          AND (
              last_fetched_at IS NULL
              OR last_fetched_at <= $1 - (refresh_interval_minutes * INTERVAL '1 minute')
          )
    `
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

// MarkQueued performs the atomic IDLE -> QUEUED transition. Returns false if
// another scheduler run won the race.
func (r *SourceRepository) MarkQueued(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE sources
        SET fetch_status = 'QUEUED', queued_at = $2
        WHERE id = $1 AND fetch_status = 'IDLE'
    `, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFetching performs the atomic QUEUED -> FETCHING claim by a worker.
func (r *SourceRepository) MarkFetching(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE sources
        SET fetch_status = 'FETCHING', fetch_started_at = $2
        WHERE id = $1 AND fetch_status = 'QUEUED'
    `, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FinishFetchSuccess releases the fetch lock and refreshes the conditional
// fetch cache.
func (r *SourceRepository) FinishFetchSuccess(ctx context.Context, id, etag, lastModified string, now time.Time) error {
	_, err := r.db.Exec(ctx, `
        UPDATE sources
        SET fetch_status = 'IDLE', last_fetched_at = $2, etag = $3,
            last_modified = $4, last_error = ''
        WHERE id = $1
    `, id, now, etag, lastModified)
	return err
}

// FinishFetchTransient records the error and releases the lock; the source
// stays ACTIVE so the next due cycle retries naturally.
func (r *SourceRepository) FinishFetchTransient(ctx context.Context, id, errMsg string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE sources
        SET fetch_status = 'IDLE', last_error = $2
        WHERE id = $1
    `, id, errMsg)
	return err
}

// FinishFetchInvalid marks a permanently invalid source ERROR so the owner
// sees it; the scheduler stops selecting it.
func (r *SourceRepository) FinishFetchInvalid(ctx context.Context, id, errMsg string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE sources
        SET status = 'ERROR', fetch_status = 'IDLE', last_error = $2
        WHERE id = $1
    `, id, errMsg)
	return err
}

// ResetStuck releases fetch locks abandoned by a crashed worker. Sources
// QUEUED or FETCHING for longer than the cutoff go back to IDLE.
func (r *SourceRepository) ResetStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE sources
        SET fetch_status = 'IDLE'
        WHERE (fetch_status = 'QUEUED' AND queued_at < $1)
           OR (fetch_status = 'FETCHING' AND fetch_started_at < $1)
    `, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SourceRepository) scanOne(ctx context.Context, query string, args ...any) (*model.Source, error) {
	return scanSource(r.db.QueryRow(ctx, query, args...))
}

func scanSource(row rowScanner) (*model.Source, error) {
	var s model.Source
	var etag, lastModified, lastError, emailAddress *string
	err := row.Scan(
		&s.ID,
		&s.BriefID,
		&s.Type,
		&s.Name,
		&s.Status,
		&s.FetchStatus,
		&s.URL,
		&etag,
		&lastModified,
		&s.RefreshIntervalMinutes,
		&s.QueuedAt,
		&s.FetchStartedAt,
		&s.LastFetchedAt,
		&lastError,
		&emailAddress,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if etag != nil {
		s.ETag = *etag
	}
	if lastModified != nil {
		s.LastModified = *lastModified
	}
	if lastError != nil {
		s.LastError = *lastError
	}
	if emailAddress != nil {
		s.EmailAddress = *emailAddress
	}
	return &s, nil
}
