// Package ledger はアカウント残高（エネルギー）のドメインロジックを提供する。
//
// 残高の不変条件は「常に0以上」の1点のみで、減算は必ず十分性検査と
// 同一の原子的操作で行われる。貸越・負残高・部分減算は存在しない。
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/ronbun/internal/repository"
)

// Service は残高の参照・減算・加算を提供するサービス層。
type Service struct {
	accounts repository.AccountRepository
}

// NewService はServiceを生成する。
func NewService(accounts repository.AccountRepository) *Service {
	return &Service{accounts: accounts}
}

// Balance は現在残高を返す。副作用はない。
func (s *Service) Balance(ctx context.Context, accountID string) (int, error) {
	return s.accounts.Balance(ctx, accountID)
}

// TryDeduct は残高がcost以上の場合のみ減算してtrueを返す。
// 残高不足の場合は残高を変更せずfalseを返す。この場合エラーではないため、
// 呼び出し側が残高不足を利用者向けメッセージに変換する。
// costが正でない場合はエラーを返す。
func (s *Service) TryDeduct(ctx context.Context, accountID string, cost int) (bool, error) {
	if cost <= 0 {
		return false, fmt.Errorf("deduct cost must be positive, got %d", cost)
	}

	deducted, err := s.accounts.DeductBalance(ctx, accountID, cost)
	if err != nil {
		return false, fmt.Errorf("残高の減算に失敗しました: %w", err)
	}

	if deducted {
		slog.Info("エネルギーを消費しました",
			slog.String("account_id", accountID),
			slog.Int("cost", cost),
		)
	}

	return deducted, nil
}

// Credit は無条件に残高をamount分増加させる。上限はない。
// クーポンの付与および管理者による手動付与で使用する。
// amountが正でない場合はエラーを返す。
func (s *Service) Credit(ctx context.Context, accountID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	if err := s.accounts.CreditBalance(ctx, accountID, amount); err != nil {
		return fmt.Errorf("残高の加算に失敗しました: %w", err)
	}

	slog.Info("エネルギーを付与しました",
		slog.String("account_id", accountID),
		slog.Int("amount", amount),
	)

	return nil
}

// Refund はTryDeduct済みのコストを払い戻す。
// AI呼び出しが失敗した場合の取り消し経路で、加算そのものはCreditと同じ。
func (s *Service) Refund(ctx context.Context, accountID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}

	if err := s.accounts.CreditBalance(ctx, accountID, amount); err != nil {
		return fmt.Errorf("残高の払い戻しに失敗しました: %w", err)
	}

	slog.Warn("エネルギーを払い戻しました",
		slog.String("account_id", accountID),
		slog.Int("amount", amount),
	)

	return nil
}
