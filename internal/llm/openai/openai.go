package openai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"vertbot/internal/interfaces"
	"vertbot/internal/store"
	"vertbot/internal/trace"
)

const (
	OllamaBaseURL = "http://localhost:11434/v1"

	defaultSystem = "You are a financial analysis expert. Answer questions about stocks and markets concisely. You do not give personalised investment advice."
)

// Reasoning models such as deepseek-r1 wrap their scratchpad in <think> tags.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Commentator answers free-form questions through any OpenAI-compatible
// chat completion endpoint (OpenAI itself, or Ollama's /v1 API).
type Commentator struct {
	client  *goopenai.Client
	model   string
	system  string
	tokens  int
	temp    float32
	timeout time.Duration
}

var _ interfaces.Commentator = (*Commentator)(nil)

// NewCommentator builds a client for cfg.LLM. apiKey may be empty for Ollama.
func NewCommentator(cfg *store.Config, apiKey string) *Commentator {
	conf := goopenai.DefaultConfig(apiKey)
	switch {
	case cfg.LLM.BaseURL != "":
		conf.BaseURL = strings.TrimRight(cfg.LLM.BaseURL, "/")
	case strings.EqualFold(cfg.LLM.Provider, "OLLAMA"):
		conf.BaseURL = OllamaBaseURL
	}

	system := cfg.LLM.System
	if system == "" {
		system = defaultSystem
	}
	return &Commentator{
		client:  goopenai.NewClientWithConfig(conf),
		model:   cfg.LLM.Model,
		system:  system,
		tokens:  cfg.LLM.MaxTokens,
		temp:    cfg.LLM.Temperature,
		timeout: 60 * time.Second,
	}
}

func (c *Commentator) Ask(ctx context.Context, question string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("empty question")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: c.system},
			{Role: goopenai.ChatMessageRoleUser, Content: question},
		},
		MaxTokens:   c.tokens,
		Temperature: c.temp,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices")
	}

	out := strings.TrimSpace(thinkBlock.ReplaceAllString(resp.Choices[0].Message.Content, ""))
	if out == "" {
		return "", errors.New("empty completion")
	}
	return out, nil
}
