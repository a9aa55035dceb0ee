package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/ronbun/internal/middleware"
	"github.com/hitoshi/ronbun/internal/model"
	"github.com/hitoshi/ronbun/internal/repository"
)

// RecordHandler はステージ記録照会のHTTPハンドラー。
type RecordHandler struct {
	records repository.RecordRepository
}

// NewRecordHandler はRecordHandlerを生成する。
func NewRecordHandler(records repository.RecordRepository) *RecordHandler {
	return &RecordHandler{
		records: records,
	}
}

// recordResponse はステージ記録1件のAPIレスポンス。
type recordResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ListRecords は指定日（UTC）のステージ記録を作成時刻の昇順で返す。
// dateパラメータ省略時は当日分を返す。
// GET /api/records?date=2026-08-31
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	day := time.Now().UTC()
	if dateParam := r.URL.Query().Get("date"); dateParam != "" {
		parsed, err := time.Parse("2006-01-02", dateParam)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "日付の形式が不正です。",
				Category: "validation",
				Action:   "YYYY-MM-DD形式で指定してください。",
			})
			return
		}
		day = parsed
	}

	records, err := h.records.ListByAccountAndDate(r.Context(), accountID, day)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, recordResponse{
			ID:        rec.ID,
			Action:    rec.Action,
			Content:   rec.Content,
			CreatedAt: rec.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
