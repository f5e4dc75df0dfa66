package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config configures an OpenAI-compatible translation client.
type Config struct {
	// BaseURL is the API base URL. Empty means api.openai.com; for a
	// local Ollama server use "http://localhost:11434/v1".
	BaseURL string
	// APIKey authenticates the request (may be empty for local servers).
	APIKey string
	// Model is the model identifier.
	Model string
	// TargetLang is the human-readable target language name ("English").
	TargetLang string
	// Cloud marks the service as remote/cloud-backed (no local VRAM
	// constraint). Calibration is bypassed for cloud clients.
	Cloud bool
	// Temperature for completions (default 0.3).
	Temperature float32
	// Timeout is the per-request HTTP timeout (default 120s).
	Timeout time.Duration
	// Glossary maps source terms to fixed translations folded into the
	// system prompt. The glossary data itself comes from the caller.
	Glossary map[string]string
}

func (c Config) temperature() float32 {
	if c.Temperature > 0 {
		return c.Temperature
	}
	return 0.3
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 120 * time.Second
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// All calls go through a circuit breaker so a dead local server fails
// fast instead of stalling every worker for the full HTTP timeout.
type OpenAIClient struct {
	cfg     Config
	api     *openai.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger

	translatePrompt string
	batchPrompt     string
	polishPrompt    string
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAI creates a client for the given endpoint. A nil logger is
// replaced with a no-op logger.
func NewOpenAI(cfg Config, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.timeout()}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "translation-api",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &OpenAIClient{
		cfg:             cfg,
		api:             openai.NewClientWithConfig(oc),
		breaker:         breaker,
		log:             logger,
		translatePrompt: resolvePrompt(DefaultSystemPrompt, cfg.TargetLang, cfg.Glossary),
		batchPrompt:     resolvePrompt(BatchSystemPrompt, cfg.TargetLang, cfg.Glossary),
		polishPrompt:    resolvePrompt(PolishSystemPrompt, cfg.TargetLang, nil),
	}
}

// IsCloud reports whether the backing service is remote/cloud-backed.
func (c *OpenAIClient) IsCloud() bool {
	return c.cfg.Cloud
}

// Translate translates a single entry.
func (c *OpenAIClient) Translate(ctx context.Context, req TranslateRequest) (string, error) {
	text, err := c.complete(ctx, c.translatePrompt, buildTranslateUserPrompt(req), nil)
	if err != nil {
		return "", err
	}
	return stripFences(text), nil
}

// Polish runs a grammar-only pass over an existing translation.
func (c *OpenAIClient) Polish(ctx context.Context, text string) (string, error) {
	out, err := c.complete(ctx, c.polishPrompt, "Polish this line:\n\n"+text, nil)
	if err != nil {
		return "", err
	}
	return stripFences(out), nil
}

// TranslateBatch translates an ordered batch in one request. Keys missing
// from the model's response are simply absent from the returned map.
func (c *OpenAIClient) TranslateBatch(ctx context.Context, items []BatchItem, history []Exchange) (map[string]string, error) {
	if len(items) == 0 {
		return map[string]string{}, nil
	}

	text, err := c.complete(ctx, c.batchPrompt, buildBatchUserPrompt(items), history)
	if err != nil {
		return nil, err
	}

	results, err := parseBatchResponse(text)
	if err != nil {
		return nil, fmt.Errorf("batch of %d: %w", len(items), err)
	}

	// Drop keys the model invented; callers correlate strictly by key.
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.Key] = true
	}
	for key := range results {
		if !known[key] {
			c.log.Debug("dropping unknown key in batch response", zap.String("key", key))
			delete(results, key)
		}
	}
	return results, nil
}

// complete sends one chat completion through the circuit breaker.
func (c *OpenAIClient) complete(ctx context.Context, system, user string, history []Exchange) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2+2*len(history))
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, ex := range history {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: ex.User},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ex.Assistant},
		)
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.cfg.Model,
			Messages:    messages,
			Temperature: c.cfg.temperature(),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("empty completion response")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	c.log.Debug("chat completion",
		zap.String("model", c.cfg.Model),
		zap.Duration("elapsed", time.Since(start)))
	return out.(string), nil
}

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := markdownCodeBlock.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// parseBatchResponse extracts the key→translation JSON object from the
// model's response text. Models wrap JSON in markdown fences or prepend
// chatter, so the object is located by brace scanning.
func parseBatchResponse(content string) (map[string]string, error) {
	content = stripFences(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}

	var results map[string]string
	if err := json.Unmarshal([]byte(content), &results); err != nil {
		return nil, fmt.Errorf("parsing response as JSON object: %w\nResponse: %s", err, truncate(content, 300))
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("response contained no translations")
	}
	return results, nil
}

// truncate shortens s to at most n bytes for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
