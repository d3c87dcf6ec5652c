package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"briefd/internal/model"
)

type ReportRepository struct {
	db *pgxpool.Pool
}

func NewReportRepository(db *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateWithItems persists a report and its ranked items in one transaction.
// Reports are immutable after this write.
func (r *ReportRepository) CreateWithItems(ctx context.Context, rep *model.Report) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO reports (id, brief_id, generated_at, status)
        VALUES ($1, $2, $3, $4)
    `, rep.ID, rep.BriefID, rep.GeneratedAt, rep.Status)
	if err != nil {
		return err
	}

	for _, ri := range rep.Items {
		_, err = tx.Exec(ctx, `
            INSERT INTO report_items (report_id, item_id, position, score)
            VALUES ($1, $2, $3, $4)
        `, rep.ID, ri.ItemID, ri.Position, ri.Score)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *ReportRepository) FindByID(ctx context.Context, id string) (*model.Report, error) {
	var rep model.Report
	err := r.db.QueryRow(ctx, `
        SELECT id, brief_id, generated_at, status FROM reports WHERE id = $1
    `, id).Scan(&rep.ID, &rep.BriefID, &rep.GeneratedAt, &rep.Status)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
        SELECT report_id, item_id, position, score
        FROM report_items
        WHERE report_id = $1
        ORDER BY position
    `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ri model.ReportItem
		if err := rows.Scan(&ri.ReportID, &ri.ItemID, &ri.Position, &ri.Score); err != nil {
			return nil, err
		}
		rep.Items = append(rep.Items, ri)
	}
	return &rep, rows.Err()
}

func (r *ReportRepository) ListByBrief(ctx context.Context, briefID string, limit int) ([]model.Report, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, brief_id, generated_at, status
        FROM reports
        WHERE brief_id = $1
        ORDER BY generated_at DESC
        LIMIT $2
    `, briefID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var rep model.Report
		if err := rows.Scan(&rep.ID, &rep.BriefID, &rep.GeneratedAt, &rep.Status); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}
