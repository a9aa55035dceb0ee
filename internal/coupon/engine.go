// Package coupon はチャージ用クーポンコードの発行・検証・使用を提供する。
//
// コードは (秘密鍵, 金額, 発行日) から決定的に導出され、発行済みコードの
// 台帳を持たずに検証できる。検証は検証側の「今日」で再導出するため、
// コードは発行日当日しか有効にならない。
package coupon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// digestLength はコード末尾のダイジェスト文字数。
const digestLength = 8

// Engine はクーポンコードの導出と検証を行う。
// 同一入力に対して常に同一のコードを生成する純粋な計算で、状態を持たない。
type Engine struct {
	secret string
	prefix string
}

// NewEngine はEngineを生成する。
// prefixは運用者が選ぶ固定リテラルで、コードの先頭セグメントになる。
func NewEngine(secret, prefix string) *Engine {
	return &Engine{
		secret: secret,
		prefix: strings.ToUpper(prefix),
	}
}

// Generate は金額と発行日からクーポンコードを導出する。
// 形式: PREFIX-<金額>-<8桁の大文字16進ダイジェスト>
// 金額が正でない場合はエラーを返す。
func (e *Engine) Generate(amount int, issueDate time.Time) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("coupon amount must be positive, got %d", amount)
	}

	digest := e.digest(amount, issueDate)
	return fmt.Sprintf("%s-%d-%s", e.prefix, amount, digest), nil
}

// Verify はコードを検証し、(有効か, 金額) を返す。
// 形式に合致しないコード、金額が整数でないコードは
// 例外を出さずに (false, 0) を返す。
// プレフィックス自体がハイフンを含んでもよいように、
// 区切りは末尾側から2回切り出す。
// ダイジェストは検証側のtodayで再導出するため、発行日とtodayが
// 一致しない限り検証は通らない。比較は大文字正規化の上で定数時間で行う。
func (e *Engine) Verify(code string, today time.Time) (bool, int) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	rest, digestPart, ok := splitLast(normalized)
	if !ok {
		return false, 0
	}
	prefix, amountPart, ok := splitLast(rest)
	if !ok || prefix != e.prefix {
		return false, 0
	}

	amount, err := strconv.Atoi(amountPart)
	if err != nil || amount <= 0 {
		return false, 0
	}

	expected := e.digest(amount, today)
	if !hmac.Equal([]byte(digestPart), []byte(expected)) {
		return false, 0
	}

	return true, amount
}

// splitLast は末尾側のハイフンで文字列を2分割する。
// ハイフンがない、または分割後どちらかが空になる場合はfalseを返す。
func splitLast(s string) (left, right string, ok bool) {
	i := strings.LastIndex(s, "-")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// digest は (秘密鍵, 金額, 日付) からHMAC-SHA256ダイジェストの先頭8桁を導出する。
// 日付は日粒度（UTC、ISO形式）に正規化する。
func (e *Engine) digest(amount int, date time.Time) string {
	mac := hmac.New(sha256.New, []byte(e.secret))
	fmt.Fprintf(mac, "%d:%s", amount, date.UTC().Format("2006-01-02"))
	sum := hex.EncodeToString(mac.Sum(nil))
	return strings.ToUpper(sum[:digestLength])
}

// HashCode は使用記録用にコードを正規化してSHA-256ハッシュ化する。
// 使用済み判定はこのハッシュの一意性で行う。
func HashCode(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
