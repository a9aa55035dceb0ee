package coupon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ronbun/internal/model"
	"github.com/hitoshi/ronbun/internal/repository"
)

// compensateTimeout は使用記録を取り消す専用コンテキストのタイムアウト。
const compensateTimeout = 5 * time.Second

// Ledger はクーポン使用時の残高操作に必要なインターフェース。
// ledger.Serviceの部分集合として定義する。
type Ledger interface {
	Credit(ctx context.Context, accountID string, amount int) error
	Balance(ctx context.Context, accountID string) (int, error)
}

// Metrics はクーポン操作のメトリクス収集インターフェース。
type Metrics interface {
	RecordCouponRedeemed(amount int)
	RecordCouponRejected()
}

// Service はクーポンの発行と使用のサービス層。
// 検証自体はEngineの純粋計算だが、使用は使用記録テーブルを通して
// 1コード1回に制限する。
type Service struct {
	engine      *Engine
	redemptions repository.RedemptionRepository
	ledger      Ledger
	metrics     Metrics
}

// NewService はServiceを生成する。metricsはnil許容。
func NewService(engine *Engine, redemptions repository.RedemptionRepository, ledger Ledger, metrics Metrics) *Service {
	return &Service{
		engine:      engine,
		redemptions: redemptions,
		ledger:      ledger,
		metrics:     metrics,
	}
}

// Issue は管理者操作としてクーポンコードを発行する。
// コードはどこにも保存されない。発行日はnowの日付（UTC）になる。
func (s *Service) Issue(amount int, now time.Time) (string, error) {
	if amount <= 0 {
		return "", model.NewInvalidAmountError(amount)
	}

	code, err := s.engine.Generate(amount, now)
	if err != nil {
		return "", fmt.Errorf("クーポンの発行に失敗しました: %w", err)
	}

	slog.Info("クーポンを発行しました",
		slog.Int("amount", amount),
		slog.String("issue_date", now.UTC().Format("2006-01-02")),
	)

	return code, nil
}

// Redeem はクーポンコードを検証し、アカウントに金額を付与して新残高を返す。
// 以下のいずれかの場合はInvalidCouponエラーを返す（理由はログでのみ区別する）:
//   - コードの形式が不正
//   - ダイジェストが今日の再導出と一致しない（改ざん・期限切れ）
//   - 同一コードが既に使用済み
func (s *Service) Redeem(ctx context.Context, accountID, code string, now time.Time) (int, error) {
	valid, amount := s.engine.Verify(code, now)
	if !valid {
		slog.Warn("無効なクーポンコードを拒否しました",
			slog.String("account_id", accountID),
		)
		if s.metrics != nil {
			s.metrics.RecordCouponRejected()
		}
		return 0, model.NewInvalidCouponError()
	}

	// 使用記録の挿入が単一使用の境界になる。
	// 挿入できなかった場合は同一コードが使用済み。
	redemptionID := uuid.New().String()
	inserted, err := s.redemptions.Create(ctx, &model.CouponRedemption{
		ID:         redemptionID,
		AccountID:  accountID,
		CodeHash:   HashCode(code),
		Amount:     amount,
		RedeemedAt: now,
	})
	if err != nil {
		return 0, fmt.Errorf("クーポン使用記録の保存に失敗しました: %w", err)
	}
	if !inserted {
		slog.Warn("使用済みクーポンコードを拒否しました",
			slog.String("account_id", accountID),
			slog.Int("amount", amount),
		)
		if s.metrics != nil {
			s.metrics.RecordCouponRejected()
		}
		return 0, model.NewInvalidCouponError()
	}

	if err := s.ledger.Credit(ctx, accountID, amount); err != nil {
		// 付与に失敗したまま使用記録だけが残ると、付与されていないのに
		// コードが使用済み扱いになる。記録を取り消して再試行可能に戻す。
		// 取り消しはリクエストから切り離したコンテキストで実行する。
		deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
		defer cancel()
		if delErr := s.redemptions.Delete(deleteCtx, redemptionID); delErr != nil {
			slog.Error("クーポン使用記録の取り消しに失敗しました",
				slog.String("account_id", accountID),
				slog.String("redemption_id", redemptionID),
				slog.String("error", delErr.Error()),
			)
		}
		return 0, fmt.Errorf("クーポン金額の付与に失敗しました: %w", err)
	}

	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("残高の取得に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordCouponRedeemed(amount)
	}

	slog.Info("クーポンを使用しました",
		slog.String("account_id", accountID),
		slog.Int("amount", amount),
		slog.Int("balance", balance),
	)

	return balance, nil
}
