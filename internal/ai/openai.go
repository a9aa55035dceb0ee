package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultOpenAIEndpoint はOpenAIチャット補完APIのエンドポイント。
const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient はOpenAIチャット補完APIのクライアント。
type OpenAIClient struct {
	httpClient  *http.Client
	logger      *slog.Logger
	apiKey      string
	model       string
	maxRespSize int64
	endpoint    string // テスト用にエンドポイントを差し替え可能
}

// NewOpenAIClient はOpenAIClientの新しいインスタンスを生成する。
func NewOpenAIClient(httpClient *http.Client, logger *slog.Logger, apiKey, model string, maxRespSize int64) *OpenAIClient {
	return &OpenAIClient{
		httpClient:  httpClient,
		logger:      logger,
		apiKey:      apiKey,
		model:       model,
		maxRespSize: maxRespSize,
		endpoint:    defaultOpenAIEndpoint,
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete はチャット補完APIを呼び出してテキスト応答を返す。
// 失敗時は状態を変更せずエラーを返す。リトライは行わない。
func (c *OpenAIClient) Complete(ctx context.Context, systemContext, userPrompt string) (string, error) {
	messages := make([]openAIMessage, 0, 2)
	if systemContext != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: systemContext})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: userPrompt})

	payload, err := json.Marshal(openAIRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("チャット補完APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("チャット補完APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("model", c.model),
		)
		return "", fmt.Errorf("チャット補完APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxRespSize))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("チャット補完APIの応答に候補が含まれていません")
	}

	return result.Choices[0].Message.Content, nil
}

// compile-time interface check
var _ TextService = (*OpenAIClient)(nil)
