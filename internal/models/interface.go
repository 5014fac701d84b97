package models

import (
	"context"

	"chatchain/internal/chat"

	"github.com/sashabaranov/go-openai"
)

// ChatModel produces completions for a list of chat messages. Implementations
// hold their configuration; one Generate call is one round trip to the provider.
type ChatModel interface {
	Generate(ctx context.Context, messages []chat.Message, stop []string) (*chat.LLMResult, error)
}

// ToolCallingModel extends ChatModel with tool-aware generation: the provided
// function definitions are attached to the request and requested tool calls
// come back on the generated assistant message.
type ToolCallingModel interface {
	ChatModel
	GenerateWithTools(ctx context.Context, messages []chat.Message, tools []openai.Tool) (*chat.LLMResult, error)
}

// CompletionClient is the minimal subset of openai.Client the adapter uses; it
// is easy to mock in tests.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
