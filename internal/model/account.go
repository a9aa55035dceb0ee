// Package model はドメインモデルを定義する。
package model

import "time"

// Account はサービス利用アカウントを表す。
// Balanceは有料操作で消費されるエネルギー残高で、常に0以上を維持する。
type Account struct {
	ID           string
	Name         string
	PasswordHash string
	Balance      int
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はアカウントのログインセッションを表す。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
