// Package ai は外部生成AIサービスのクライアントを提供する。
// チャット補完モデル（OpenAI）と生成コンテンツモデル（Gemini）の2系統を、
// 共通のTextServiceインターフェースの背後に隠蔽する。
package ai

import "context"

// TextService は生成AIサービスの抽象インターフェース。
// 呼び出し失敗は非致命であり、呼び出し側が利用者向けメッセージに変換する。
type TextService interface {
	// Complete は文脈とプロンプトを渡してテキスト応答を取得する。
	// systemContextが空の場合はプロンプト単体で呼び出す。
	Complete(ctx context.Context, systemContext, userPrompt string) (string, error)
}
