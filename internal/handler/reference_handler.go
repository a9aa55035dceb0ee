package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/ronbun/internal/model"
)

// ReferenceImporterInterface は参考文献ハンドラーが必要とするURL取り込みインターフェース。
type ReferenceImporterInterface interface {
	Import(ctx context.Context, rawURL string) (*model.Reference, error)
}

// ArxivSearcherInterface は参考文献ハンドラーが必要とするarXiv検索インターフェース。
type ArxivSearcherInterface interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.Reference, error)
}

// ReferenceAppender は取り込んだ参考文献をセッションの研究コンテキストに
// 追加するためのインターフェース。
type ReferenceAppender interface {
	AddReference(sessionID string, ref model.Reference)
}

// ReferenceHandler は参考文献取り込みのHTTPハンドラー。
type ReferenceHandler struct {
	importer ReferenceImporterInterface
	arxiv    ArxivSearcherInterface
	contexts ReferenceAppender
}

// NewReferenceHandler はReferenceHandlerを生成する。
func NewReferenceHandler(importer ReferenceImporterInterface, arxiv ArxivSearcherInterface, contexts ReferenceAppender) *ReferenceHandler {
	return &ReferenceHandler{
		importer: importer,
		arxiv:    arxiv,
		contexts: contexts,
	}
}

// importRequest はURL取り込みリクエストのボディ。
type importRequest struct {
	URL string `json:"url"`
}

// arxivRequest はarXiv検索リクエストのボディ。
type arxivRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// referencesImportedResponse は取り込み結果のAPIレスポンス。
type referencesImportedResponse struct {
	References []referenceResponse `json:"references"`
}

// ImportURL は指定URLのページを参考文献として取り込み、コンテキストに追加する。
// POST /api/references/import
func (h *ReferenceHandler) ImportURL(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	var req importRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	ref, err := h.importer.Import(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.contexts.AddReference(sessionID, *ref)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(referencesImportedResponse{
		References: []referenceResponse{{
			Title:   ref.Title,
			URL:     ref.URL,
			Summary: ref.Summary,
			Source:  ref.Source,
			AddedAt: ref.AddedAt,
		}},
	})
}

// SearchArxiv はarXivを検索し、ヒットした論文を全てコンテキストに追加する。
// POST /api/references/arxiv
func (h *ReferenceHandler) SearchArxiv(w http.ResponseWriter, r *http.Request) {
	sessionID, _, ok := sessionAndAccount(w, r)
	if !ok {
		return
	}

	var req arxivRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	refs, err := h.arxiv.Search(r.Context(), req.Query, req.MaxResults)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := referencesImportedResponse{References: make([]referenceResponse, 0, len(refs))}
	for _, ref := range refs {
		h.contexts.AddReference(sessionID, ref)
		resp.References = append(resp.References, referenceResponse{
			Title:   ref.Title,
			URL:     ref.URL,
			Summary: ref.Summary,
			Source:  ref.Source,
			AddedAt: ref.AddedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}
