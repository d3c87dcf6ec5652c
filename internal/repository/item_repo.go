package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"briefd/internal/model"
)

type ItemRepository struct {
	db *pgxpool.Pool
}

func NewItemRepository(db *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `
	id, source_id, guid, title, link, author, published_at, raw_content,
	clean_content, web_content, summary, topics, entities, sentiment, score,
	score_reasoning, status, error_message, read_at, saved, created_at
`

// Insert persists a newly discovered item. The (source_id, guid) unique
// constraint is the dedup boundary: a conflicting insert is skipped silently
// and Insert reports false.
func (r *ItemRepository) Insert(ctx context.Context, it *model.Item) (bool, error) {
	query := `
        INSERT INTO items (
            id, source_id, guid, title, link, author, published_at,
            raw_content, clean_content, status, error_message, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
        ON CONFLICT (source_id, guid) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query,
		it.ID, it.SourceID, it.GUID, it.Title, it.Link, it.Author,
		it.PublishedAt, it.RawContent, it.CleanContent, it.Status, it.ErrorMessage,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ItemRepository) FindByID(ctx context.Context, id string) (*model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return scanItem(r.db.QueryRow(ctx, query, id))
}

// Claim is the processing lock: an atomic NEW/PENDING -> PROCESSING
// transition. Returns false when the item is not in a claimable state, which
// makes re-delivered processing jobs safe to drop.
func (r *ItemRepository) Claim(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE items
        SET status = 'PROCESSING', updated_at = NOW()
        WHERE id = $1 AND status IN ('NEW', 'PENDING')
    `, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetWebContent stores the on-demand full-text extraction result.
func (r *ItemRepository) SetWebContent(ctx context.Context, id, content string) error {
	_, err := r.db.Exec(ctx, `UPDATE items SET web_content = $2 WHERE id = $1`, id, content)
	return err
}

// MarkDone records the enrichment output. Score may be nil when enrichment
// succeeded but no score was produced; such items never enter reports.
func (r *ItemRepository) MarkDone(ctx context.Context, it *model.Item) error {
	_, err := r.db.Exec(ctx, `
        UPDATE items
        SET status = 'DONE', summary = $2, topics = $3, entities = $4,
            sentiment = $5, score = $6, score_reasoning = $7,
            error_message = '', updated_at = NOW()
        WHERE id = $1 AND status = 'PROCESSING'
    `, it.ID, it.Summary, it.Topics, it.Entities, it.Sentiment, it.Score, it.ScoreReasoning)
	return err
}

// MarkPending reverts a transient processing failure for a later retry.
func (r *ItemRepository) MarkPending(ctx context.Context, id, errMsg string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE items
        SET status = 'PENDING', error_message = $2, updated_at = NOW()
        WHERE id = $1 AND status = 'PROCESSING'
    `, id, errMsg)
	return err
}

// MarkError terminates an item after its retry budget is exhausted.
func (r *ItemRepository) MarkError(ctx context.Context, id, errMsg string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE items
        SET status = 'ERROR', error_message = $2, updated_at = NOW()
        WHERE id = $1
    `, id, errMsg)
	return err
}

// ListTopForReport returns the brief's DONE, scored items published after
// `since`, ranked score descending with a deterministic tie-break on
// creation order then id.
func (r *ItemRepository) ListTopForReport(ctx context.Context, briefID string, since time.Time, limit int) ([]model.Item, error) {
	query := `
        SELECT ` + itemColumns + `
        FROM items i
        WHERE i.source_id IN (SELECT id FROM sources WHERE brief_id = $1)
          AND i.status = 'DONE'
          AND i.published_at > $2
          AND i.score IS NOT NULL
        ORDER BY i.score DESC, i.created_at ASC, i.id ASC
        LIMIT $3
    `
	rows, err := r.db.Query(ctx, query, briefID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// ListRequeueable returns ids of items that have sat in NEW or PENDING since
// before the cutoff, meaning no in-flight job is left to move them. Oldest
// first so a large backlog drains in arrival order.
func (r *ItemRepository) ListRequeueable(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id FROM items
        WHERE status IN ('NEW', 'PENDING') AND updated_at < $1
        ORDER BY updated_at ASC
        LIMIT $2
    `, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ItemRepository) ListBySource(ctx context.Context, sourceID string, limit int) ([]model.Item, error) {
	query := `
        SELECT ` + itemColumns + `
        FROM items
        WHERE source_id = $1
        ORDER BY published_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func scanItem(row rowScanner) (*model.Item, error) {
	var it model.Item
	var author, rawContent, cleanContent, webContent, summary, sentiment, scoreReasoning, errorMessage *string
	err := row.Scan(
		&it.ID,
		&it.SourceID,
		&it.GUID,
		&it.Title,
		&it.Link,
		&author,
		&it.PublishedAt,
		&rawContent,
		&cleanContent,
		&webContent,
		&summary,
		&it.Topics,
		&it.Entities,
		&sentiment,
		&it.Score,
		&scoreReasoning,
		&it.Status,
		&errorMessage,
		&it.ReadAt,
		&it.Saved,
		&it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if author != nil {
		it.Author = *author
	}
	if rawContent != nil {
		it.RawContent = *rawContent
	}
	if cleanContent != nil {
		it.CleanContent = *cleanContent
	}
	if webContent != nil {
		it.WebContent = *webContent
	}
	if summary != nil {
		it.Summary = *summary
	}
	if sentiment != nil {
		it.Sentiment = *sentiment
	}
	if scoreReasoning != nil {
		it.ScoreReasoning = *scoreReasoning
	}
	if errorMessage != nil {
		it.ErrorMessage = *errorMessage
	}
	return &it, nil
}
