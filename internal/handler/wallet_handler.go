package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/ronbun/internal/middleware"
	"github.com/hitoshi/ronbun/internal/model"
)

// WalletLedgerInterface はウォレットハンドラーが必要とする残高照会インターフェース。
type WalletLedgerInterface interface {
	Balance(ctx context.Context, accountID string) (int, error)
}

// CouponServiceInterface はウォレットハンドラーが必要とするクーポンサービスインターフェース。
type CouponServiceInterface interface {
	Issue(amount int, now time.Time) (string, error)
	Redeem(ctx context.Context, accountID, code string, now time.Time) (int, error)
}

// AccountFinder は管理者権限の確認に必要なアカウント検索インターフェース。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// WalletHandler は残高照会とクーポン操作のHTTPハンドラー。
type WalletHandler struct {
	ledger   WalletLedgerInterface
	coupons  CouponServiceInterface
	accounts AccountFinder
}

// NewWalletHandler はWalletHandlerを生成する。
func NewWalletHandler(ledger WalletLedgerInterface, coupons CouponServiceInterface, accounts AccountFinder) *WalletHandler {
	return &WalletHandler{
		ledger:   ledger,
		coupons:  coupons,
		accounts: accounts,
	}
}

// walletResponse は残高照会のAPIレスポンス。
type walletResponse struct {
	Balance int `json:"balance"`
}

// redeemRequest はクーポン使用リクエストのボディ。
type redeemRequest struct {
	Code string `json:"code"`
}

// issueRequest はクーポン発行リクエストのボディ。
type issueRequest struct {
	Amount int `json:"amount"`
}

// issueResponse はクーポン発行のAPIレスポンス。
// コードはこのレスポンスにのみ現れ、サーバー側には保存されない。
type issueResponse struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
}

// GetWallet は現在の残高を返す。
// GET /api/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(walletResponse{Balance: balance})
}

// RedeemCoupon はクーポンコードを使用して残高をチャージする。
// POST /api/wallet/coupons/redeem
func (h *WalletHandler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req redeemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	balance, err := h.coupons.Redeem(r.Context(), accountID, req.Code, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(walletResponse{Balance: balance})
}

// IssueCoupon は管理者操作としてクーポンコードを発行する。
// 管理者以外のアカウントにはFORBIDDENを返す。
// POST /api/admin/coupons
func (h *WalletHandler) IssueCoupon(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	account, err := h.accounts.FindByID(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if account == nil || !account.IsAdmin {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	var req issueRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	code, err := h.coupons.Issue(req.Amount, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(issueResponse{Code: code, Amount: req.Amount})
}
