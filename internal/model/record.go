// Package model はドメインモデルを定義する。
package model

import "time"

// StageRecord はステージ操作の成果物の保存記録を表す。
// AIの応答やステージ確定の内容がアカウント単位で時系列に蓄積される。
type StageRecord struct {
	ID        string
	AccountID string
	Action    string
	Content   string
	CreatedAt time.Time
}
