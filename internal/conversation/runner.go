// Package conversation drives one chat turn against the model: it assembles
// the prompt from history, lets the model call tools, and records the
// exchange. The turn lifecycle is modeled as a small state machine.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatchain/internal/chat"
	"chatchain/internal/config"
	"chatchain/internal/history"
	"chatchain/internal/logger"
	"chatchain/internal/models"
	"chatchain/internal/tools"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultSystemPrompt = "You are a helpful AI assistant. Please respond to the user's request accurately and concisely."
	defaultMaxTurns     = 5
)

var (
	// ErrMaxTurns is returned when the model keeps requesting tools past the
	// turn budget.
	ErrMaxTurns = errors.New("conversation: exceeded maximum interaction turns")

	// ErrNoGenerations is returned when the model produces an empty result.
	ErrNoGenerations = errors.New("conversation: model returned no generations")
)

// Turn lifecycle states.
var (
	stateIdle         stateless.State = "Idle"
	stateCallingModel stateless.State = "CallingModel"
	stateRunningTools stateless.State = "RunningTools"
	stateDone         stateless.State = "Done"
	stateFailed       stateless.State = "Failed"
)

// Turn lifecycle triggers.
var (
	triggerStart          stateless.Trigger = "Start"
	triggerAnswered       stateless.Trigger = "Answered"
	triggerToolsRequested stateless.Trigger = "ToolsRequested"
	triggerToolsDone      stateless.Trigger = "ToolsDone"
	triggerFailed         stateless.Trigger = "Failed"
)

// Runner executes conversation turns.
type Runner struct {
	model        models.ToolCallingModel
	tools        tools.Executor
	store        *history.Store
	systemPrompt string
	maxTurns     int
}

// New builds a Runner. exec may be nil when no tool servers are configured.
func New(model models.ToolCallingModel, exec tools.Executor, store *history.Store, cfg config.LLMConfig) *Runner {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Runner{
		model:        model,
		tools:        exec,
		store:        store,
		systemPrompt: prompt,
		maxTurns:     defaultMaxTurns,
	}
}

// turn carries the mutable state of one Run invocation through the FSM.
type turn struct {
	messages []chat.Message
	pending  []chat.ToolCall
	final    string
	err      error
	turns    int
}

// Run processes one user input for the session and returns the assistant
// reply. Prior session history is replayed into the prompt; on success the
// user input and the final reply are persisted.
func (r *Runner) Run(ctx context.Context, sessionID, input string) (string, error) {
	prior, err := r.store.Messages(sessionID)
	if err != nil {
		logger.L.Warn("could not load session history; continuing without it", "session_id", sessionID, "error", err)
		prior = nil
	}

	t := &turn{
		messages: make([]chat.Message, 0, len(prior)+2),
	}
	t.messages = append(t.messages, chat.SystemMessage(r.systemPrompt))
	t.messages = append(t.messages, prior...)
	t.messages = append(t.messages, chat.UserMessage(input))

	fsm := stateless.NewStateMachine(stateIdle)

	fsm.Configure(stateIdle).
		Permit(triggerStart, stateCallingModel)

	fsm.Configure(stateCallingModel).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if t.turns >= r.maxTurns {
				t.err = ErrMaxTurns
				return fsm.FireCtx(ctx, triggerFailed)
			}
			t.turns++

			result, err := r.model.GenerateWithTools(ctx, t.messages, r.toolDefs())
			if err != nil {
				t.err = err
				return fsm.FireCtx(ctx, triggerFailed)
			}
			if len(result.Generations) == 0 {
				t.err = ErrNoGenerations
				return fsm.FireCtx(ctx, triggerFailed)
			}

			msg := result.Generations[0].Message
			t.messages = append(t.messages, msg)
			logger.L.Debug("model responded", "session_turn", t.turns, "tool_calls", len(msg.ToolCalls), "usage", result.Usage)

			if len(msg.ToolCalls) > 0 {
				t.pending = msg.ToolCalls
				return fsm.FireCtx(ctx, triggerToolsRequested)
			}
			t.final = msg.Content
			return fsm.FireCtx(ctx, triggerAnswered)
		}).
		Permit(triggerToolsRequested, stateRunningTools).
		Permit(triggerAnswered, stateDone).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateRunningTools).
		OnEntry(func(ctx context.Context, _ ...any) error {
			for _, call := range t.pending {
				t.messages = append(t.messages, chat.ToolMessage(call.ID, call.Name, r.runTool(ctx, call)))
			}
			t.pending = nil
			return fsm.FireCtx(ctx, triggerToolsDone)
		}).
		Permit(triggerToolsDone, stateCallingModel).
		Permit(triggerFailed, stateFailed)

	if err := fsm.FireCtx(ctx, triggerStart); err != nil {
		return "", fmt.Errorf("conversation state machine: %w", err)
	}

	current, err := fsm.State(ctx)
	if err != nil {
		return "", fmt.Errorf("conversation state machine: %w", err)
	}
	switch current {
	case stateDone:
		r.persist(sessionID, input, t.final)
		return t.final, nil
	case stateFailed:
		if t.err == nil {
			t.err = errors.New("conversation: turn failed without a recorded error")
		}
		return "", t.err
	default:
		return "", fmt.Errorf("conversation ended in unexpected state %v", current)
	}
}

func (r *Runner) toolDefs() []openai.Tool {
	if r.tools == nil {
		return nil
	}
	return r.tools.Tools()
}

// runTool decodes the call arguments and executes the tool. Failures come
// back as text so the model can recover on the next turn.
func (r *Runner) runTool(ctx context.Context, call chat.ToolCall) string {
	if r.tools == nil {
		return "Error: no tools are available to execute " + call.Name
	}
	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			logger.L.Error("failed to decode tool arguments", "tool", call.Name, "error", err)
			return "Error: could not parse arguments for tool " + call.Name
		}
	}
	return r.tools.Execute(ctx, call.Name, args)
}

func (r *Runner) persist(sessionID, input, reply string) {
	if err := r.store.Save(sessionID, chat.UserMessage(input)); err != nil {
		logger.L.Error("failed to persist user message", "session_id", sessionID, "error", err)
	}
	if err := r.store.Save(sessionID, chat.AssistantMessage(reply)); err != nil {
		logger.L.Error("failed to persist assistant message", "session_id", sessionID, "error", err)
	}
}
