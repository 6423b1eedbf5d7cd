package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vertbot/internal/store"
)

func TestAskStripsReasoning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "deepseek-r1:1.5b" || len(req.Messages) != 2 || req.Messages[1].Content != "Is AAPL up?" {
			t.Errorf("Unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"<think>\nlet me see\n</think>\nApple closed higher."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	cfg := store.DefaultConfig()
	cfg.LLM.Provider = "OLLAMA"
	cfg.LLM.BaseURL = srv.URL
	cfg.LLM.Model = "deepseek-r1:1.5b"

	got, err := NewCommentator(cfg, "").Ask(context.Background(), "Is AAPL up?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Apple closed higher." {
		t.Errorf("Unexpected answer %q", got)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	cfg := store.DefaultConfig()
	if _, err := NewCommentator(cfg, "k").Ask(context.Background(), "  "); err == nil {
		t.Error("Expected error for an empty question")
	}
}
