// Package model はドメインモデルを定義する。
package model

import "time"

// CouponRedemption はクーポンの使用記録を表す。
// 同一コードの再使用を防ぐため、正規化済みコードのSHA-256ハッシュを保持する。
// クーポンは発行日当日しか検証を通らないため、古い記録はワーカーが破棄する。
type CouponRedemption struct {
	ID         string
	AccountID  string
	CodeHash   string
	Amount     int
	RedeemedAt time.Time
}
