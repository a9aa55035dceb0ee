// Package reference は参考文献の外部ソースからの取り込みを提供する。
//
// 取り込み経路は2つある:
//   - 任意のWebページURLからのメタデータ抽出（SSRF防止付き）
//   - arXiv APIからの論文検索
//
// いずれも取り込んだ参考文献はセッションの研究コンテキストに追加され、
// 先行研究の原資料として草稿作成と参考文献整形に使われる。
package reference

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/ronbun/internal/model"
	"github.com/hitoshi/ronbun/internal/security"
)

// Importer はWebページURLから参考文献メタデータを取り込む。
// SSRF防止付きHTTPクライアントで取得し、タイトルと概要を抽出する。
type Importer struct {
	guard     security.SSRFGuardService
	sanitizer security.ContentSanitizerService
	client    *http.Client
	logger    *slog.Logger
	maxSize   int64
}

// NewImporter はImporterを生成する。
// HTTPクライアントはguardから生成されるSSRF防止付きクライアントを使用する。
func NewImporter(
	guard security.SSRFGuardService,
	sanitizer security.ContentSanitizerService,
	logger *slog.Logger,
	timeout time.Duration,
	maxSize int64,
) *Importer {
	return &Importer{
		guard:     guard,
		sanitizer: sanitizer,
		client:    guard.NewSafeClient(timeout),
		logger:    logger,
		maxSize:   maxSize,
	}
}

// Import は指定URLのページを取得し、参考文献として返す。
//
// URLは2段階で検証される。形式の静的検証に失敗した場合はINVALID_URL、
// ブロック対象ホストの場合はSSRF_BLOCKEDを返す。取得自体の失敗
// （接続エラー・非2xx・本文パース不能）はFETCH_FAILEDを返す。
// DNS再バインディングはクライアント側のDialer検証でブロックされるため、
// その場合もFETCH_FAILEDとして扱われる。
func (i *Importer) Import(ctx context.Context, rawURL string) (*model.Reference, error) {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, model.NewInvalidURLError("URL形式が不正です")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, model.NewInvalidURLError(fmt.Sprintf("未対応のスキームです: %s", scheme))
	}

	if err := i.guard.ValidateURL(rawURL); err != nil {
		i.logger.Warn("URLの取り込みをブロックしました",
			slog.String("url", rawURL),
			slog.String("reason", err.Error()),
		)
		return nil, model.NewSSRFBlockedError()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError("リクエストを構築できません")
	}
	req.Header.Set("User-Agent", "ronbun-reference-importer/1.0")

	resp, err := i.client.Do(req)
	if err != nil {
		i.logger.Warn("URLの取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError("接続に失敗しました")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxSize))
	if err != nil {
		return nil, model.NewFetchFailedError("本文の読み取りに失敗しました")
	}

	title, description := extractMetadata(body)
	if title == "" {
		title = rawURL
	}

	return &model.Reference{
		Title:   title,
		URL:     rawURL,
		Summary: strings.TrimSpace(i.sanitizer.Sanitize(description)),
		Source:  "url",
		AddedAt: time.Now(),
	}, nil
}

// extractMetadata はHTML本文からtitleタグとdescriptionメタタグを抽出する。
// パースに失敗しても取り込み自体は継続するため、エラーは返さない。
func extractMetadata(body []byte) (title, description string) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", ""
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, content string
				for _, attr := range n.Attr {
					switch strings.ToLower(attr.Key) {
					case "name", "property":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if description == "" && (name == "description" || name == "og:description") {
					description = strings.TrimSpace(content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title, description
}
