package models

import "errors"

var (
	// ErrMissingAPIKey is returned when neither the configuration nor the
	// OPENAI_API_KEY environment variable provides a credential.
	ErrMissingAPIKey = errors.New("models: missing OpenAI API key")

	// ErrIncompatibleClient is returned when an injected client does not
	// implement CompletionClient.
	ErrIncompatibleClient = errors.New("models: client does not support chat completions")

	// ErrStopConflict is returned when stop sequences are supplied both at
	// construction and per call.
	ErrStopConflict = errors.New("models: stop sequences set in both config and call")
)
