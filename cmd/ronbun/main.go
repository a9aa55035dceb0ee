// Command ronbun は論文執筆支援APIサーバーのエントリーポイント。
//
// サブコマンド:
//
//	serve       APIサーバーを起動する（デフォルト）
//	worker      クリーンアップワーカーを起動する
//	migrate     データベースマイグレーションを適用する
//	healthcheck /health エンドポイントを確認する（Dockerヘルスチェック用）
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/ronbun/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
