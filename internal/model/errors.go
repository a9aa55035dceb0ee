// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, billing, stage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeInvalidCoupon       = "INVALID_COUPON"
	ErrCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeDuplicateAccount    = "DUPLICATE_ACCOUNT"
	ErrCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	ErrCodeInvalidStage        = "INVALID_STAGE"
	ErrCodeNoPendingAction     = "NO_PENDING_ACTION"
	ErrCodeMissingInput        = "MISSING_INPUT"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeFetchFailed         = "FETCH_FAILED"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeRateLimited         = "RATE_LIMITED"
)

// NewInsufficientBalanceError は残高不足エラーを生成する。
// requiredには操作に必要なコストを指定する。
func NewInsufficientBalanceError(required, balance int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientBalance,
		Message:  fmt.Sprintf("エネルギーが不足しています（必要: %d、残高: %d）。", required, balance),
		Category: "billing",
		Action:   "クーポンで残高をチャージしてから再度お試しください。",
	}
}

// NewInvalidCouponError は無効なクーポンエラーを生成する。
// 形式不正・期限切れ・使用済みはログ上でのみ区別し、ユーザー向けの文言は共通とする。
func NewInvalidCouponError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCoupon,
		Message:  "無効または期限切れのクーポンコードです。",
		Category: "billing",
		Action:   "コードの入力内容と有効期限（発行日当日のみ）を確認してください。",
	}
}

// NewServiceUnavailableError は外部AIサービスの呼び出し失敗エラーを生成する。
func NewServiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  "AIサービスの呼び出しに失敗しました。残高は消費されていません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewDuplicateAccountError はアカウント名重複エラーを生成する。
func NewDuplicateAccountError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateAccount,
		Message:  fmt.Sprintf("このアカウント名は既に使用されています: %s", name),
		Category: "auth",
		Action:   "別のアカウント名を指定してください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
// 認証失敗の詳細（名前違い・パスワード違い）は漏らさない。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "アカウント名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidStageError は未定義ステージエラーを生成する。
func NewInvalidStageError(stage string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStage,
		Message:  fmt.Sprintf("未定義のステージです: %s", stage),
		Category: "stage",
		Action:   "variables, method, literature, draft, references, chat のいずれかを指定してください。",
	}
}

// NewNoPendingActionError は確認待ち操作が存在しない場合のエラーを生成する。
func NewNoPendingActionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoPendingAction,
		Message:  "確認待ちの操作がありません。",
		Category: "stage",
		Action:   "先にステージ操作を開始してください。",
	}
}

// NewMissingInputError は必須入力の欠落エラーを生成する。
func NewMissingInputError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingInput,
		Message:  fmt.Sprintf("必須の入力が不足しています: %s", field),
		Category: "validation",
		Action:   "不足している項目を入力してから再度お試しください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewFetchFailedError は外部リソース取得失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "system",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidAmountError は無効な金額エラーを生成する。
func NewInvalidAmountError(amount int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("無効な金額です: %d", amount),
		Category: "validation",
		Action:   "1以上の整数を指定してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
// retryAfterSecには再試行可能になるまでの推定秒数を指定する。
func NewRateLimitedError(retryAfterSec int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   fmt.Sprintf("%d秒ほど待ってから再度お試しください。", retryAfterSec),
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}
