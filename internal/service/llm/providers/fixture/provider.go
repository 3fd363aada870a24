package fixture

import (
	"context"
	"strings"

	"parley/internal/domain/models"
	"parley/internal/service/llm"
)

// Provider is a deterministic test double: fixed prompts map to fixed
// outputs, streamed in fixed fragment boundaries. Handler tests compare the
// resulting frame sequence against a reference, so output must be stable.
type Provider struct{}

// NewProvider creates the fixture provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "fixture"
}

// Stream replays the canned fragments for the last user prompt.
func (p *Provider) Stream(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.Fragment, error) {
	fragments := fragmentsFor(req.Model, lastUserText(req.Messages))

	ch := make(chan llm.Fragment, len(fragments))
	for _, frag := range fragments {
		ch <- llm.Fragment{Text: frag}
	}
	close(ch)
	return ch, nil
}

func lastUserText(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].FirstText()
		}
	}
	return ""
}

func fragmentsFor(model, prompt string) []string {
	reasoning := strings.Contains(model, "reasoning")

	var answer []string
	switch {
	case strings.Contains(prompt, "sky"):
		answer = []string{"It's ", "just ", "blue ", "duh!"}
	case strings.Contains(prompt, "grass"):
		answer = []string{"It's ", "just ", "green ", "duh!"}
	default:
		answer = []string{"Why, ", "hello ", "there!"}
	}

	if !reasoning {
		return answer
	}
	// Reasoning fixture interleaves a tagged narration, split across
	// fragment boundaries to exercise marker reassembly.
	return append([]string{"<thi", "nk>", "The ", "question ", "is ", "simple.", "</think>"}, answer...)
}
