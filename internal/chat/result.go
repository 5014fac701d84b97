package chat

// Generation is one candidate response produced by the model for a request.
type Generation struct {
	Message Message `json:"message"`
}

// TokenUsage mirrors the provider's usage accounting for one request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResult aggregates all generations of one request together with the
// provider-reported usage metadata. Values are request-scoped.
type LLMResult struct {
	Generations []Generation `json:"generations"`
	ModelName   string       `json:"model_name"`
	Usage       TokenUsage   `json:"usage"`
}
