package reference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
	"github.com/hitoshi/ronbun/internal/security"
)

// mockSSRFGuard はsecurity.SSRFGuardServiceのモック実装。
// テストではローカルのhttptestサーバーに接続するため、
// 検証結果だけを差し替え、クライアントは素のhttp.Clientを返す。
type mockSSRFGuard struct {
	validateFunc func(rawURL string) error
}

var _ security.SSRFGuardService = (*mockSSRFGuard)(nil)

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	if m.validateFunc != nil {
		return m.validateFunc(rawURL)
	}
	return nil
}

func newTestImporter(guard security.SSRFGuardService) *Importer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewImporter(guard, security.NewContentSanitizer(), logger, 5*time.Second, 1<<20)
}

func TestImporter_ImportExtractsMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
<title>SNS使用と青少年の自尊感情の関係</title>
<meta name="description" content="本研究はSNS使用時間と自尊感情の相関を検討した。">
</head>
<body><p>本文</p></body>
</html>`))
	}))
	defer server.Close()

	imp := newTestImporter(&mockSSRFGuard{})

	ref, err := imp.Import(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if ref.Title != "SNS使用と青少年の自尊感情の関係" {
		t.Errorf("Title = %q", ref.Title)
	}
	if ref.Summary != "本研究はSNS使用時間と自尊感情の相関を検討した。" {
		t.Errorf("Summary = %q", ref.Summary)
	}
	if ref.URL != server.URL {
		t.Errorf("URL = %q, want %q", ref.URL, server.URL)
	}
	if ref.Source != "url" {
		t.Errorf("Source = %q, want url", ref.Source)
	}
}

func TestImporter_ImportSanitizesDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head>
<title>論文</title>
<meta name="description" content="概要<script>alert(1)</script>テキスト">
</head></html>`))
	}))
	defer server.Close()

	imp := newTestImporter(&mockSSRFGuard{})

	ref, err := imp.Import(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if strings.Contains(ref.Summary, "script") || strings.Contains(ref.Summary, "alert") {
		t.Errorf("scriptタグが除去されていない: %q", ref.Summary)
	}
}

func TestImporter_ImportFallsBackToURLAsTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>no title here</body></html>`))
	}))
	defer server.Close()

	imp := newTestImporter(&mockSSRFGuard{})

	ref, err := imp.Import(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if ref.Title != server.URL {
		t.Errorf("Title = %q, want URL %q", ref.Title, server.URL)
	}
}

func TestImporter_ImportRejectsInvalidURL(t *testing.T) {
	imp := newTestImporter(&mockSSRFGuard{})

	tests := []struct {
		name   string
		rawURL string
	}{
		{"空文字列", ""},
		{"スキームなし", "example.com/paper"},
		{"未対応スキーム", "ftp://example.com/paper"},
		{"javascriptスキーム", "javascript:alert(1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := imp.Import(context.Background(), tt.rawURL)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidURL {
				t.Errorf("err = %v, want INVALID_URL", err)
			}
		})
	}
}

func TestImporter_ImportBlocksUnsafeHost(t *testing.T) {
	guard := &mockSSRFGuard{validateFunc: func(rawURL string) error {
		return errors.New("blocked host: localhost")
	}}
	imp := newTestImporter(guard)

	_, err := imp.Import(context.Background(), "http://localhost/admin")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSSRFBlocked {
		t.Errorf("err = %v, want SSRF_BLOCKED", err)
	}
}

func TestImporter_ImportReportsFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	imp := newTestImporter(&mockSSRFGuard{})

	_, err := imp.Import(context.Background(), server.URL)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFetchFailed {
		t.Errorf("err = %v, want FETCH_FAILED", err)
	}
}

func TestImporter_ImportTruncatesOversizedBody(t *testing.T) {
	// maxSizeを超える本文は打ち切られるが、先頭部分にtitleがあれば抽出できる
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><head><title>先頭の論文タイトル</title></head><body>"))
		_, _ = w.Write([]byte(strings.Repeat("x", 1<<16)))
		_, _ = w.Write([]byte("</body></html>"))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	imp := NewImporter(&mockSSRFGuard{}, security.NewContentSanitizer(), logger, 5*time.Second, 1<<10)

	ref, err := imp.Import(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if ref.Title != "先頭の論文タイトル" {
		t.Errorf("Title = %q", ref.Title)
	}
}
