package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
)

// PostgresRedemptionRepo はPostgreSQLを使用したクーポン使用記録リポジトリ。
type PostgresRedemptionRepo struct {
	db *sql.DB
}

// NewPostgresRedemptionRepo はPostgresRedemptionRepoを生成する。
func NewPostgresRedemptionRepo(db *sql.DB) *PostgresRedemptionRepo {
	return &PostgresRedemptionRepo{db: db}
}

// Create は使用記録を作成する。
// code_hashのUNIQUE制約に対するON CONFLICT DO NOTHINGで再使用を検出するため、
// 検証と記録の間に他のリクエストが割り込んでも二重付与は起きない。
func (r *PostgresRedemptionRepo) Create(ctx context.Context, redemption *model.CouponRedemption) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO coupon_redemptions (id, account_id, code_hash, amount, redeemed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (code_hash) DO NOTHING`,
		redemption.ID, redemption.AccountID, redemption.CodeHash,
		redemption.Amount, redemption.RedeemedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert redemption: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Delete は指定IDの使用記録を削除する。
func (r *PostgresRedemptionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM coupon_redemptions WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("failed to delete redemption: %w", err)
	}
	return nil
}

// DeleteOlderThan は指定時刻より古い使用記録を削除し、削除件数を返す。
func (r *PostgresRedemptionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM coupon_redemptions WHERE redeemed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old redemptions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ RedemptionRepository = (*PostgresRedemptionRepo)(nil)
