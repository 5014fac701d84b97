package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"chatchain/internal/chat"
	"chatchain/internal/config"
	"chatchain/internal/logger"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is used when the configuration does not name one.
	DefaultModel = openai.GPT3Dot5Turbo

	defaultRequestTimeout = 600 * time.Second
	defaultMaxRetries     = 6
	retryBaseDelay        = time.Second
	retryMaxDelay         = 30 * time.Second
)

// ChatOpenAI wraps the OpenAI chat completion API behind the ChatModel
// interface. Configuration is fixed at construction; Generate performs a
// single synchronous request with retries on transient failures.
type ChatOpenAI struct {
	client      CompletionClient
	modelName   string
	temperature float32
	maxTokens   int
	n           int
	stop        []string
	maxRetries  int
	baseDelay   time.Duration
}

// Option customizes a ChatOpenAI during construction.
type Option func(*ChatOpenAI) error

// WithClient injects the completion client. Anything that does not implement
// CompletionClient fails construction with ErrIncompatibleClient; this guards
// against wiring in an SDK client that predates the chat completion API.
func WithClient(client any) Option {
	return func(m *ChatOpenAI) error {
		c, ok := client.(CompletionClient)
		if !ok {
			return fmt.Errorf("%w: %T", ErrIncompatibleClient, client)
		}
		m.client = c
		return nil
	}
}

// WithRetryBaseDelay overrides the starting backoff delay. Used by tests.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(m *ChatOpenAI) error {
		m.baseDelay = d
		return nil
	}
}

// NewChatOpenAI validates the configuration and returns a ready adapter.
// The API key comes from cfg or the OPENAI_API_KEY environment variable and
// must be present even when a client is injected; validation failures happen
// here, before any request is made.
func NewChatOpenAI(cfg config.LLMConfig, opts ...Option) (*ChatOpenAI, error) {
	m := &ChatOpenAI{
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		n:           cfg.N,
		stop:        cfg.Stop,
		maxRetries:  cfg.MaxRetries,
		baseDelay:   retryBaseDelay,
	}
	if m.modelName == "" {
		m.modelName = DefaultModel
	}
	if m.maxRetries == 0 {
		m.maxRetries = defaultMaxRetries
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if m.client == nil {
		clientCfg := openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		if cfg.Organization != "" {
			clientCfg.OrgID = cfg.Organization
		}
		timeout := cfg.RequestTimeout
		if timeout == 0 {
			timeout = defaultRequestTimeout
		}
		clientCfg.HTTPClient = &http.Client{Timeout: timeout}
		m.client = openai.NewClientWithConfig(clientCfg)
	}

	return m, nil
}

// ModelName reports the model this adapter sends requests for.
func (m *ChatOpenAI) ModelName() string {
	return m.modelName
}

// Generate sends messages to the chat completion endpoint and maps the
// response into an LLMResult: one Generation per returned choice, usage
// copied verbatim.
func (m *ChatOpenAI) Generate(ctx context.Context, messages []chat.Message, stop []string) (*chat.LLMResult, error) {
	req, err := m.buildRequest(messages, stop)
	if err != nil {
		return nil, err
	}

	resp, err := m.createWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	return m.buildResult(resp)
}

// GenerateWithTools is Generate with function definitions attached; the model
// may answer with content or with tool calls on the assistant message.
func (m *ChatOpenAI) GenerateWithTools(ctx context.Context, messages []chat.Message, tools []openai.Tool) (*chat.LLMResult, error) {
	req, err := m.buildRequest(messages, nil)
	if err != nil {
		return nil, err
	}
	req.Tools = tools

	resp, err := m.createWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	return m.buildResult(resp)
}

func (m *ChatOpenAI) buildRequest(messages []chat.Message, stop []string) (openai.ChatCompletionRequest, error) {
	if len(stop) > 0 && len(m.stop) > 0 {
		return openai.ChatCompletionRequest{}, ErrStopConflict
	}
	effectiveStop := stop
	if len(effectiveStop) == 0 {
		effectiveStop = m.stop
	}

	converted, err := chat.MessagesToOpenAI(messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	// The SDK marshals temperature with omitempty, so a plain 0 would be
	// dropped from the request and the provider would substitute its own
	// default. Temperature is always part of this request; represent 0 with
	// the smallest nonzero value so it reaches the wire.
	temperature := m.temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return openai.ChatCompletionRequest{
		Model:       m.modelName,
		Messages:    converted,
		Temperature: temperature,
		MaxTokens:   m.maxTokens,
		N:           m.n,
		Stop:        effectiveStop,
	}, nil
}

func (m *ChatOpenAI) createWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(m.baseDelay, attempt)
			logger.L.Warn("retrying chat completion", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, ctx.Err()
			}
		}

		resp, err := m.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return openai.ChatCompletionResponse{}, err
		}
	}
	return openai.ChatCompletionResponse{}, fmt.Errorf("chat completion failed after %d retries: %w", m.maxRetries, lastErr)
}

func (m *ChatOpenAI) buildResult(resp openai.ChatCompletionResponse) (*chat.LLMResult, error) {
	generations := make([]chat.Generation, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		msg, err := chat.FromOpenAI(choice.Message)
		if err != nil {
			return nil, err
		}
		generations = append(generations, chat.Generation{Message: msg})
	}
	return &chat.LLMResult{
		Generations: generations,
		ModelName:   m.modelName,
		Usage: chat.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// isRetryable classifies 429 and 5xx API errors plus transport-level failures
// as transient. Context cancellation and other API errors surface immediately.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			(apiErr.HTTPStatusCode >= 500 && apiErr.HTTPStatusCode < 600)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests ||
			(reqErr.HTTPStatusCode >= 500 && reqErr.HTTPStatusCode < 600)
	}
	// Anything else is a transport failure (connection reset, DNS, timeout).
	return true
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << (attempt - 1)
	if delay > retryMaxDelay || delay <= 0 {
		return retryMaxDelay
	}
	return delay
}
