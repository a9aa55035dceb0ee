package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ronbun/internal/middleware"
	"github.com/hitoshi/ronbun/internal/repository"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBのPingContextを想定している。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	SessionDropper SessionDropper
	CSRFConfig     middleware.CSRFConfig

	// ウォレット
	Ledger        WalletLedgerInterface
	CouponService CouponServiceInterface
	AccountFinder AccountFinder

	// ステージ
	StageService StageServiceInterface

	// 参考文献
	ReferenceImporter ReferenceImporterInterface
	ArxivSearcher     ArxivSearcherInterface
	ReferenceAppender ReferenceAppender

	// 記録
	RecordRepository repository.RecordRepository
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS
//	→ Session → CSRF → RateLimit(General)
//
// セッションミドルウェア以降は認証ルート（/auth/*）には適用しない。
// AI生成を伴うエンドポイント（ステージ実行・チャット）には
// 生成専用のレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェアを最上位に適用
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionDropper, deps.AuthConfig)
	walletHandler := NewWalletHandler(deps.Ledger, deps.CouponService, deps.AccountFinder)
	stageHandler := NewStageHandler(deps.StageService)
	referenceHandler := NewReferenceHandler(deps.ReferenceImporter, deps.ArxivSearcher, deps.ReferenceAppender)
	recordHandler := NewRecordHandler(deps.RecordRepository)

	// --- 認証不要のルート ---

	// ヘルスチェック（Dockerヘルスチェック・監視用）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// CSRFトークン取得（ログイン前でも取得できるようミドルウェアチェーンの外に置く）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ウォレット
		r.Route("/api/wallet", func(r chi.Router) {
			r.Get("/", walletHandler.GetWallet)
			r.Post("/coupons/redeem", walletHandler.RedeemCoupon)
		})

		// 管理者操作
		r.Post("/api/admin/coupons", walletHandler.IssueCoupon)

		// ステージ操作
		r.Route("/api/stages", func(r chi.Router) {
			r.Get("/state", stageHandler.State)
			r.Post("/cancel", stageHandler.Cancel)

			// 確定と開始はAI生成につながるため生成専用レート制限を追加
			r.With(deps.RateLimiter.GenerationMiddleware()).Post("/confirm", stageHandler.Confirm)
			r.With(deps.RateLimiter.GenerationMiddleware()).Post("/{stage}", stageHandler.Begin)
		})

		// チャット（即時実行・即時課金）
		r.With(deps.RateLimiter.GenerationMiddleware()).Post("/api/chat", stageHandler.Chat)

		// 研究コンテキスト
		r.Route("/api/context", func(r chi.Router) {
			r.Get("/", stageHandler.GetContext)
			r.Put("/topic", stageHandler.SetTopic)
			r.Put("/variables", stageHandler.ConfirmVariables)
			r.Put("/method", stageHandler.ConfirmMethod)
		})

		// 参考文献取り込み
		r.Route("/api/references", func(r chi.Router) {
			r.Post("/import", referenceHandler.ImportURL)
			r.Post("/arxiv", referenceHandler.SearchArxiv)
		})

		// ステージ記録
		r.Get("/api/records", recordHandler.ListRecords)
	})

	return r
}
