package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation history. Turns are immutable once stored.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// OutputSchema asks the provider to constrain its completion to a JSON schema.
// Providers without native support receive it as an instruction.
type OutputSchema struct {
	Name   string
	Strict bool
	Schema jsonschema.Definition
}

type LLMRequest struct {
	Model        string
	System       []string
	Messages     []ChatMessage
	MaxTokens    int32
	Temperature  float32
	OutputSchema *OutputSchema
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is the upstream model capability: given a history, return a completion.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// UpstreamError marks a failure of the model capability (network, auth, quota, timeout).
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("conversation: upstream failure: %v", e.Err)
	}
	return fmt.Sprintf("conversation: upstream %s failure: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func asUpstreamError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &UpstreamError{Provider: provider, Err: err}
}

func splitSystemAndMessages(history []ChatMessage) ([]string, []ChatMessage) {
	if len(history) == 0 {
		return nil, nil
	}
	system := make([]string, 0, 2)
	messages := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role == ChatRoleSystem {
			system = append(system, msg.Content)
			continue
		}
		messages = append(messages, msg)
	}
	return system, messages
}

func cloneMessages(history []ChatMessage) []ChatMessage {
	if history == nil {
		return nil
	}
	out := make([]ChatMessage, len(history))
	copy(out, history)
	return out
}
