package reference

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/ronbun/internal/model"
)

// arxivEndpoint はarXiv APIのクエリエンドポイント。
// 検索結果はAtomフィードとして返される。
const arxivEndpoint = "https://export.arxiv.org/api/query"

// defaultMaxResults はarXiv検索の既定の最大取得件数。
const defaultMaxResults = 5

// ArxivSearcher はarXiv APIから論文を検索し、参考文献として取り込む。
type ArxivSearcher struct {
	parser   *gofeed.Parser
	logger   *slog.Logger
	endpoint string // テストで差し替え可能
}

// NewArxivSearcher はArxivSearcherを生成する。
// フィードの取得には指定のHTTPクライアントを使用する。
func NewArxivSearcher(client *http.Client, logger *slog.Logger) *ArxivSearcher {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "ronbun-reference-importer/1.0"

	return &ArxivSearcher{
		parser:   parser,
		logger:   logger,
		endpoint: arxivEndpoint,
	}
}

// Search はarXivをクエリで検索し、ヒットした論文を参考文献のリストとして返す。
// maxResultsが0以下の場合は既定値を使う。検索結果が0件の場合は空のスライスを返す。
func (s *ArxivSearcher) Search(ctx context.Context, query string, maxResults int) ([]model.Reference, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewMissingInputError("query")
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "relevance")
	requestURL := s.endpoint + "?" + params.Encode()

	feed, err := s.parser.ParseURLWithContext(requestURL, ctx)
	if err != nil {
		s.logger.Warn("arXiv検索に失敗しました",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError("arXiv APIの呼び出しに失敗しました")
	}

	now := time.Now()
	refs := make([]model.Reference, 0, len(feed.Items))
	for _, item := range feed.Items {
		refs = append(refs, model.Reference{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Summary: summarize(item),
			Source:  "arxiv",
			AddedAt: now,
		})
	}

	s.logger.Info("arXiv検索が完了しました",
		slog.String("query", query),
		slog.Int("hits", len(refs)),
	)

	return refs, nil
}

// summarize は論文エントリから著者・発表年・要旨を1本のテキストにまとめる。
// 参考文献整形ステージがAPA様式への変換に使える形を意識している。
func summarize(item *gofeed.Item) string {
	var b strings.Builder

	if len(item.Authors) > 0 {
		names := make([]string, 0, len(item.Authors))
		for _, a := range item.Authors {
			if a != nil && a.Name != "" {
				names = append(names, a.Name)
			}
		}
		b.WriteString(strings.Join(names, ", "))
	}

	if item.PublishedParsed != nil {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fmt.Sprintf("(%d)", item.PublishedParsed.Year()))
	}

	abstract := strings.TrimSpace(item.Description)
	if abstract != "" {
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString(abstract)
	}

	return b.String()
}
