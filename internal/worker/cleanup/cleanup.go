// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッションと、保持期間（デフォルト48時間）を超過した
// クーポン使用記録を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionStore は期限切れセッションの削除に必要なインターフェース。
type SessionStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RedemptionStore は古いクーポン使用記録の削除に必要なインターフェース。
type RedemptionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は期限切れセッションと古いクーポン使用記録の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions    SessionStore
	redemptions RedemptionStore
	logger      *slog.Logger

	// RedemptionRetention はクーポン使用記録の保持期間（デフォルト: 48時間）。
	// クーポンは発行日当日しか有効でないため、発行日を跨いだ記録は
	// 重複使用の検出に不要になる。
	RedemptionRetention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionStore, redemptions RedemptionStore, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:            sessions,
		redemptions:         redemptions,
		logger:              logger,
		RedemptionRetention: 48 * time.Hour,
	}
}

// Run は期限切れセッションと保持期間超過のクーポン使用記録を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.sessions.DeleteExpired(ctx, start)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	cutoff := start.Add(-j.RedemptionRetention)
	purgedRedemptions, err := j.redemptions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("クーポン使用記録の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff),
		)
		return fmt.Errorf("クーポン使用記録の削除に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", expiredSessions),
		slog.Int64("purged_redemptions", purgedRedemptions),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
