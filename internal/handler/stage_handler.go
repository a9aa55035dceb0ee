package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ronbun/internal/middleware"
	"github.com/hitoshi/ronbun/internal/model"
	"github.com/hitoshi/ronbun/internal/stage"
)

// StageServiceInterface はステージハンドラーが必要とするサービスインターフェース。
type StageServiceInterface interface {
	Begin(ctx context.Context, sessionID, accountID, stageName, payload string) (*stage.Result, error)
	Confirm(ctx context.Context, sessionID, accountID string) (*stage.Result, error)
	Cancel(sessionID string) error
	State(sessionID string) (stage.GateState, *stage.PendingAction)
	Context(sessionID string) *model.ResearchContext
	SetTopic(sessionID, topic string) error
	ConfirmVariables(sessionID, variables string) error
	ConfirmMethod(sessionID, method string) error
}

// StageHandler はステージ操作と研究コンテキストのHTTPハンドラー。
type StageHandler struct {
	service StageServiceInterface
}

// NewStageHandler はStageHandlerを生成する。
func NewStageHandler(service StageServiceInterface) *StageHandler {
	return &StageHandler{
		service: service,
	}
}

// stageRequest はステージ開始リクエストのボディ。
// payloadの意味はステージによって異なる（変因提案では研究主題、
// 草稿作成ではチャプター名、チャットでは質問文）。
type stageRequest struct {
	Payload string `json:"payload"`
}

// stageResponse はステージ操作のAPIレスポンス。
type stageResponse struct {
	Stage   string `json:"stage"`
	State   string `json:"state"`
	Cost    int    `json:"cost"`
	Balance int    `json:"balance"`
	Output  string `json:"output,omitempty"`
}

// pendingResponse は確認待ち操作のAPIレスポンス。
type pendingResponse struct {
	Stage    string    `json:"stage"`
	Cost     int       `json:"cost"`
	StagedAt time.Time `json:"staged_at"`
}

// stateResponse はゲート状態のAPIレスポンス。
type stateResponse struct {
	State   string           `json:"state"`
	Pending *pendingResponse `json:"pending,omitempty"`
}

// Begin はステージ操作を開始する。
// チャット以外のステージではコストを提示して確認待ちとなる。
// POST /api/stages/{stage}
func (h *StageHandler) Begin(w http.ResponseWriter, r *http.Request) {
	sessionID, accountID, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	var req stageRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Begin(r.Context(), sessionID, accountID, chi.URLParam(r, "stage"), req.Payload)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeStageResponse(w, result)
}

// Confirm は確認待ちの操作を確定して実行する。
// POST /api/stages/confirm
func (h *StageHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	sessionID, accountID, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	result, err := h.service.Confirm(r.Context(), sessionID, accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeStageResponse(w, result)
}

// Cancel は確認待ちの操作を破棄する。残高は変化しない。
// POST /api/stages/cancel
func (h *StageHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(sessionID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// State は現在のゲート状態と確認待ち操作を返す。
// GET /api/stages/state
func (h *StageHandler) State(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	state, pending := h.service.State(sessionID)

	resp := stateResponse{State: string(state)}
	if pending != nil {
		resp.Pending = &pendingResponse{
			Stage:    string(pending.Stage),
			Cost:     pending.Cost,
			StagedAt: pending.StagedAt,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// chatRequest はチャットリクエストのボディ。
type chatRequest struct {
	Message string `json:"message"`
}

// Chat は研究コンテキストを踏まえたチャット応答を返す。
// チャットは確認往復なしで即時実行・即時課金される。
// POST /api/chat
func (h *StageHandler) Chat(w http.ResponseWriter, r *http.Request) {
	sessionID, accountID, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.Begin(r.Context(), sessionID, accountID, string(model.StageChat), req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeStageResponse(w, result)
}

// referenceResponse は参考文献のAPIレスポンス。
type referenceResponse struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Summary string    `json:"summary,omitempty"`
	Source  string    `json:"source"`
	AddedAt time.Time `json:"added_at"`
}

// chatTurnResponse はチャット往復1件のAPIレスポンス。
type chatTurnResponse struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// contextResponse は研究コンテキスト全体のAPIレスポンス。
type contextResponse struct {
	Topic           string              `json:"topic"`
	VariableOptions string              `json:"variable_options,omitempty"`
	Variables       string              `json:"variables,omitempty"`
	MethodOptions   string              `json:"method_options,omitempty"`
	Method          string              `json:"method,omitempty"`
	LiteratureNotes string              `json:"literature_notes,omitempty"`
	References      []referenceResponse `json:"references"`
	FormattedRefs   string              `json:"formatted_refs,omitempty"`
	Sections        map[string]string   `json:"sections"`
	Chat            []chatTurnResponse  `json:"chat"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// GetContext は現在の研究コンテキストのスナップショットを返す。
// GET /api/context
func (h *StageHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	rc := h.service.Context(sessionID)

	refs := make([]referenceResponse, 0, len(rc.References))
	for _, ref := range rc.References {
		refs = append(refs, referenceResponse{
			Title:   ref.Title,
			URL:     ref.URL,
			Summary: ref.Summary,
			Source:  ref.Source,
			AddedAt: ref.AddedAt,
		})
	}

	chat := make([]chatTurnResponse, 0, len(rc.Chat))
	for _, turn := range rc.Chat {
		chat = append(chat, chatTurnResponse{
			Role:    turn.Role,
			Content: turn.Content,
			At:      turn.At,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(contextResponse{
		Topic:           rc.Topic,
		VariableOptions: rc.VariableOptions,
		Variables:       rc.Variables,
		MethodOptions:   rc.MethodOptions,
		Method:          rc.Method,
		LiteratureNotes: rc.LiteratureNotes,
		References:      refs,
		FormattedRefs:   rc.FormattedRefs,
		Sections:        rc.Sections,
		Chat:            chat,
		UpdatedAt:       rc.UpdatedAt,
	})
}

// contextFieldRequest はコンテキスト確定値更新リクエストのボディ。
type contextFieldRequest struct {
	Value string `json:"value"`
}

// SetTopic は研究主題を設定する。
// PUT /api/context/topic
func (h *StageHandler) SetTopic(w http.ResponseWriter, r *http.Request) {
	h.updateContextField(w, r, h.service.SetTopic)
}

// ConfirmVariables は利用者が選んだ変因構造を確定する。
// PUT /api/context/variables
func (h *StageHandler) ConfirmVariables(w http.ResponseWriter, r *http.Request) {
	h.updateContextField(w, r, h.service.ConfirmVariables)
}

// ConfirmMethod は利用者が選んだ研究方法を確定する。
// PUT /api/context/method
func (h *StageHandler) ConfirmMethod(w http.ResponseWriter, r *http.Request) {
	h.updateContextField(w, r, h.service.ConfirmMethod)
}

// updateContextField はコンテキスト確定値更新の共通処理。
func (h *StageHandler) updateContextField(w http.ResponseWriter, r *http.Request, update func(sessionID, value string) error) {
	sessionID, _, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	var req contextFieldRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := update(sessionID, req.Value); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sessionAndAccount はリクエストコンテキストからセッションIDとアカウントIDを取得する。
// どちらかが欠けている場合は401を書き込んでfalseを返す。
func sessionAndAccount(w http.ResponseWriter, r *http.Request) (sessionID, accountID string, ok bool) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return "", "", false
	}
	accountID, err = middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return "", "", false
	}
	return sessionID, accountID, true
}

// writeStageResponse はステージ操作結果をJSONで書き込む。
func writeStageResponse(w http.ResponseWriter, result *stage.Result) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stageResponse{
		Stage:   string(result.Stage),
		State:   string(result.State),
		Cost:    result.Cost,
		Balance: result.Balance,
		Output:  result.Output,
	})
}
