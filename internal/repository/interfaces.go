// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
// 残高の更新は必ず条件付きの原子的操作として提供し、
// 残高が負になる更新経路を持たない。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByName はアカウント名でアカウントを検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Account, error)

	// Create はアカウントを作成する。
	// アカウント名が重複している場合はエラーを返す。
	Create(ctx context.Context, account *model.Account) error

	// Balance は指定アカウントの現在残高を返す。
	Balance(ctx context.Context, id string) (int, error)

	// DeductBalance は残高が足りる場合のみ原子的にcost分を減算する。
	// 減算できた場合はtrueを、残高不足の場合は残高を変更せずfalseを返す。
	DeductBalance(ctx context.Context, id string, cost int) (bool, error)

	// CreditBalance は無条件に残高をamount分増加させる。
	CreditBalance(ctx context.Context, id string, amount int) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RedemptionRepository はクーポン使用記録の永続化インターフェース。
// コードハッシュの一意制約により同一コードの再使用を防ぐ。
type RedemptionRepository interface {
	// Create は使用記録を作成する。
	// 同一code_hashが既に記録済みの場合は挿入せずfalseを返す。
	Create(ctx context.Context, redemption *model.CouponRedemption) (bool, error)

	// Delete は指定IDの使用記録を削除する。
	// 記録後の付与に失敗した場合の取り消しに使用する。
	Delete(ctx context.Context, id string) error

	// DeleteOlderThan は指定時刻より古い使用記録を削除し、削除件数を返す。
	// クーポンは発行日当日しか有効でないため、古い記録は安全に破棄できる。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RecordRepository はステージ記録の永続化インターフェース。
// 外部永続化サービスの抽象に相当し、書き込み失敗は呼び出し側で
// 非致命として扱われる（記録は失われるが操作自体は成功する）。
type RecordRepository interface {
	// Append はステージ記録を追記する。
	Append(ctx context.Context, record *model.StageRecord) error

	// ListByAccountAndDate は指定アカウントの指定日（UTC、日単位）の記録を
	// 作成時刻の昇順で返す。
	ListByAccountAndDate(ctx context.Context, accountID string, day time.Time) ([]*model.StageRecord, error)
}
