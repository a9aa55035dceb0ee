package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAIClient_Complete_ReturnsChoiceContent(t *testing.T) {
	var gotAuth string
	var gotReq openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"提案された変因構造"}}]}`))
	}))
	defer server.Close()

	c := NewOpenAIClient(server.Client(), testLogger(), "sk-test", "gpt-4o-mini", 1048576)
	c.endpoint = server.URL

	text, err := c.Complete(context.Background(), "研究方法論の専門家", "主題: 学習動機")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "提案された変因構造" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", gotReq.Model)
	}
}

func TestOpenAIClient_Complete_OmitsEmptySystemContext(t *testing.T) {
	var gotReq openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	c := NewOpenAIClient(server.Client(), testLogger(), "sk-test", "gpt-4o-mini", 1048576)
	c.endpoint = server.URL

	if _, err := c.Complete(context.Background(), "", "質問"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestOpenAIClient_Complete_ErrorStatus_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewOpenAIClient(server.Client(), testLogger(), "sk-test", "gpt-4o-mini", 1048576)
	c.endpoint = server.URL

	if _, err := c.Complete(context.Background(), "", "質問"); err == nil {
		t.Error("expected error for 429 response")
	}
}

func TestOpenAIClient_Complete_EmptyChoices_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	c := NewOpenAIClient(server.Client(), testLogger(), "sk-test", "gpt-4o-mini", 1048576)
	c.endpoint = server.URL

	if _, err := c.Complete(context.Background(), "", "質問"); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestGeminiClient_Complete_ConcatenatesParts(t *testing.T) {
	var gotKey string
	var gotReq geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"先行研究1。"},{"text":"先行研究2。"}]}}]}`))
	}))
	defer server.Close()

	c := NewGeminiClient(server.Client(), testLogger(), "gm-test", "gemini-2.5-flash", 1048576)
	c.endpoint = server.URL

	text, err := c.Complete(context.Background(), "文献検索の専門家", "主題: 学習動機")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "先行研究1。先行研究2。" {
		t.Errorf("text = %q", text)
	}
	if gotKey != "gm-test" {
		t.Errorf("x-goog-api-key = %q, want gm-test", gotKey)
	}
	if gotReq.SystemInstruction == nil {
		t.Error("system_instruction missing from request")
	}
	if len(gotReq.Contents) != 1 {
		t.Errorf("contents length = %d, want 1", len(gotReq.Contents))
	}
}

func TestGeminiClient_Complete_NoCandidates_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	c := NewGeminiClient(server.Client(), testLogger(), "gm-test", "gemini-2.5-flash", 1048576)
	c.endpoint = server.URL

	if _, err := c.Complete(context.Background(), "", "質問"); err == nil {
		t.Error("expected error for empty candidates")
	}
}

func TestGeminiClient_Complete_ContextCancelled_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	c := NewGeminiClient(server.Client(), testLogger(), "gm-test", "gemini-2.5-flash", 1048576)
	c.endpoint = server.URL

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := c.Complete(ctx, "", "質問"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
