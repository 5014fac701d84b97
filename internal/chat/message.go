package chat

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Role tags a message with its conversational origin.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
	RoleTool      Role = "tool"
)

// ErrUnknownRole is returned when a message carries a role the provider API
// has no equivalent for.
var ErrUnknownRole = errors.New("chat: unknown message role")

// ToolCall is a tool invocation requested by the model in an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a role-tagged unit of conversational content exchanged with the
// model provider. Name is set for function and tool result messages;
// ToolCallID ties a tool result to the call that produced it.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// SystemMessage returns a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// FunctionMessage returns a function-result message attributed to the named function.
func FunctionMessage(name, content string) Message {
	return Message{Role: RoleFunction, Content: content, Name: name}
}

// ToolMessage returns a tool-result message for the given tool call.
func ToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}

// ToOpenAI converts a Message into the SDK's wire representation.
func ToOpenAI(m Message) (openai.ChatCompletionMessage, error) {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction, RoleTool:
	default:
		return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %q", ErrUnknownRole, m.Role)
	}

	out := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out, nil
}

// MessagesToOpenAI converts a message list, preserving order. It fails on the
// first message with an unknown role.
func MessagesToOpenAI(msgs []Message) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for i, m := range msgs {
		converted, err := ToOpenAI(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, converted)
	}
	return out, nil
}

// FromOpenAI converts an SDK message back into a Message. Roles the SDK may
// emit that we do not model map to an error so callers notice schema drift.
func FromOpenAI(m openai.ChatCompletionMessage) (Message, error) {
	switch Role(m.Role) {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction, RoleTool:
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownRole, m.Role)
	}

	out := Message{
		Role:       Role(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
