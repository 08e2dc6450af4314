// Package llm defines the completion and image-generation backends used by
// the dialogue engine and the /imagine command.
//
// The dialogue engine builds one CompletionRequest per user message from the
// persisted history; the backend is stateless between calls.
package llm

import (
	"context"
	"errors"
)

// Role is the role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImagePart is an inline image attached to a user message.
type ImagePart struct {
	MIME string
	Data []byte
}

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
	// Image, when set, turns the message into a multipart text+image message.
	Image *ImagePart
}

// CompletionRequest is the input to a single LLM inference call.
type CompletionRequest struct {
	// Model overrides the provider's default model when non-empty.
	Model string
	// System is sent as the leading system message when non-empty.
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// CompletionResponse is the output from the LLM.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage reports token consumption.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ErrMalformedResponse is returned when the backend answers without choices
// or without image data.
var ErrMalformedResponse = errors.New("llm: malformed response")

// Provider is the interface that all completion backends must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ImageGenerator renders a prompt into an encoded image (PNG or JPEG).
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}
