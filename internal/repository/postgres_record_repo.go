package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
)

// PostgresRecordRepo はPostgreSQLを使用したステージ記録リポジトリ。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

// Append はステージ記録を追記する。
func (r *PostgresRecordRepo) Append(ctx context.Context, record *model.StageRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stage_records (id, account_id, action, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID, record.AccountID, record.Action, record.Content, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stage record: %w", err)
	}
	return nil
}

// ListByAccountAndDate は指定アカウントの指定日（UTC、日単位）の記録を
// 作成時刻の昇順で返す。
func (r *PostgresRecordRepo) ListByAccountAndDate(ctx context.Context, accountID string, day time.Time) ([]*model.StageRecord, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, action, content, created_at
		 FROM stage_records
		 WHERE account_id = $1 AND created_at >= $2 AND created_at < $3
		 ORDER BY created_at ASC`,
		accountID, dayStart, dayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage records: %w", err)
	}
	defer rows.Close()

	var records []*model.StageRecord
	for rows.Next() {
		rec := &model.StageRecord{}
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Action, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stage records: %w", err)
	}

	return records, nil
}

// compile-time interface check
var _ RecordRepository = (*PostgresRecordRepo)(nil)
