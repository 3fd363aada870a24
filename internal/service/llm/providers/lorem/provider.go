package lorem

import (
	"context"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	"parley/internal/service/llm"
)

// Provider is a mock provider that streams lorem ipsum text. Used for
// development without real API keys. Models containing "reasoning" wrap a
// leading sentence in <think> tags to exercise the demultiplexer.
type Provider struct {
	generator *loremgen.Lorem
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider() *Provider {
	return &Provider{generator: loremgen.New()}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "lorem"
}

// Stream emits lorem ipsum words at a throttled pace, honoring ctx
// cancellation between words.
func (p *Provider) Stream(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.Fragment, error) {
	var fragments []string
	if strings.Contains(req.Model, "reasoning") {
		fragments = append(fragments, "<think>", p.generator.Sentence(4, 8), "</think>")
	}
	for _, word := range strings.Fields(p.generator.Paragraph(2, 4)) {
		fragments = append(fragments, word+" ")
	}

	ch := make(chan llm.Fragment)
	go func() {
		defer close(ch)
		for _, frag := range fragments {
			select {
			case ch <- llm.Fragment{Text: frag}:
			case <-ctx.Done():
				return
			}
			select {
			case <-time.After(30 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
