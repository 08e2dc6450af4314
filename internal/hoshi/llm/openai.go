package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gemini-2.5-flash"
	// DefaultImageModel is the image model used by /imagine.
	DefaultImageModel = "imagen-3.0-generate-002"
	// DefaultImagePrompt replaces an empty caption on an image message.
	DefaultImagePrompt = "What's in this image?"
)

// OpenAIConfig configures the OpenAI-compatible adapter.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint. Defaults to DefaultBaseURL.
	BaseURL string
	// Model is the default model when CompletionRequest.Model is empty.
	Model      string
	ImageModel string
	ImageSize  string
	// HTTPTimeout bounds each HTTP request. Defaults to 120s; callers apply
	// their own, usually shorter, context deadline on top.
	HTTPTimeout time.Duration
}

// OpenAI implements Provider and ImageGenerator over any OpenAI-compatible
// API using github.com/sashabaranov/go-openai.
type OpenAI struct {
	cfg    OpenAIConfig
	client *openai.Client
}

var (
	_ Provider       = (*OpenAI)(nil)
	_ ImageGenerator = (*OpenAI)(nil)
)

// NewOpenAI returns a client for the OpenAI (or compatible) API.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = openai.CreateImageSize1024x1024
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}

	return &OpenAI{cfg: cfg, client: openai.NewClientWithConfig(oc)}
}

// Complete sends one chat completion request.
func (p *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.System, req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, describeError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: %w: no choices", ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Generate creates one image for prompt and returns its decoded bytes.
func (p *OpenAI) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.cfg.ImageModel,
		N:              1,
		Size:           p.cfg.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, describeError("image generation", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image generation: %w: no image data", ErrMalformedResponse)
	}

	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("image generation: decode: %w", err)
	}
	return img, nil
}

func toOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range msgs {
		if m.Image == nil {
			out = append(out, openai.ChatCompletionMessage{
				Role:    string(m.Role),
				Content: m.Content,
			})
			continue
		}

		text := m.Content
		if text == "" {
			text = DefaultImagePrompt
		}
		out = append(out, openai.ChatCompletionMessage{
			Role: string(m.Role),
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: text},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    DataURL(m.Image.MIME, m.Image.Data),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		})
	}
	return out
}

// DataURL encodes data as an RFC 2397 data URL.
func DataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// describeError flattens go-openai error types into a single line that keeps
// the HTTP status and upstream message.
func describeError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: HTTP %d: %w", op, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s: HTTP %d: %w", op, reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
