package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"parley/internal/domain/models"
	"parley/internal/service/llm"
)

// Provider streams completions from the OpenAI chat completions API (or any
// compatible endpoint via OPENAI_BASE_URL).
type Provider struct {
	client *openai.Client
}

// NewProvider creates an OpenAI provider. baseURL may be empty for the
// default endpoint.
func NewProvider(apiKey, baseURL string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Stream invokes the model and forwards completion deltas as raw fragments.
func (p *Provider) Stream(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.Fragment, error) {
	messages, err := toChatMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}

	ch := make(chan llm.Fragment)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case ch <- llm.Fragment{Err: fmt.Errorf("recv completion delta: %w", err)}:
				case <-ctx.Done():
				}
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case ch <- llm.Fragment{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// toChatMessages flattens message parts into API messages. Reasoning parts
// are not replayed to the model; data parts have no textual form.
func toChatMessages(history []models.Message) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		var role string
		switch msg.Role {
		case models.RoleUser:
			role = openai.ChatMessageRoleUser
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		var content strings.Builder
		for _, part := range msg.Parts {
			if part.Type == models.PartTypeText {
				content.WriteString(part.Text)
			}
		}
		if content.Len() == 0 {
			continue
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: content.String(),
		})
	}
	return messages, nil
}
