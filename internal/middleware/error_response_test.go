package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/ronbun/internal/model"
)

// TestWriteErrorResponse_DomainErrors はドメインエラーが統一フォーマットで
// 書き込まれることを検証する。
func TestWriteErrorResponse_DomainErrors(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		apiErr       *model.APIError
		wantCode     string
		wantCategory string
	}{
		{
			name:         "残高不足は402",
			statusCode:   http.StatusPaymentRequired,
			apiErr:       model.NewInsufficientBalanceError(100, 40),
			wantCode:     "INSUFFICIENT_BALANCE",
			wantCategory: "billing",
		},
		{
			name:         "無効クーポンは400",
			statusCode:   http.StatusBadRequest,
			apiErr:       model.NewInvalidCouponError(),
			wantCode:     "INVALID_COUPON",
			wantCategory: "billing",
		},
		{
			name:         "未認証は401",
			statusCode:   http.StatusUnauthorized,
			apiErr:       model.NewUnauthorizedError(),
			wantCode:     "UNAUTHORIZED",
			wantCategory: "auth",
		},
		{
			name:         "SSRFブロックは403",
			statusCode:   http.StatusForbidden,
			apiErr:       model.NewSSRFBlockedError(),
			wantCode:     "SSRF_BLOCKED",
			wantCategory: "validation",
		},
		{
			name:         "確認待ちなしは409",
			statusCode:   http.StatusConflict,
			apiErr:       model.NewNoPendingActionError(),
			wantCode:     "NO_PENDING_ACTION",
			wantCategory: "stage",
		},
		{
			name:         "レート制限超過は429",
			statusCode:   http.StatusTooManyRequests,
			apiErr:       model.NewRateLimitedError(3),
			wantCode:     "RATE_LIMITED",
			wantCategory: "system",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			resp := w.Result()
			if resp.StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.statusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", body.Category, tt.wantCategory)
			}
			if body.Message == "" {
				t.Error("message should not be empty")
			}
			if body.Action == "" {
				t.Error("action should not be empty")
			}
		})
	}
}

// TestInternalServerError_HidesDetails は内部エラーが詳細を伏せた
// 一般的なメッセージで返ることを検証する。
func TestInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
}

// TestErrorResponseBody_AllFieldsPresent はcode/message/category/actionの
// 全フィールドがJSONに含まれることを検証する。フロントエンドはこの4フィールドを
// 前提にエラー表示を組み立てる。
func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingInputError("topic"))

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}
