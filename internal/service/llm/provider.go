package llm

import (
	"context"

	"parley/internal/domain/models"
)

// Fragment is one raw unit of model output. A non-nil Err terminates the
// stream; the channel is closed after the final fragment.
type Fragment struct {
	Text string
	Err  error
}

// GenerateRequest contains the parameters for a model invocation.
type GenerateRequest struct {
	// Model is the upstream model identifier the provider understands.
	Model string

	// Messages is the full ordered conversation history, oldest first,
	// ending with the user message that triggered this turn.
	Messages []models.Message
}

// Provider is a model-invocation capability. It is injected per call at
// composition time, never held as ambient singleton state, so test and
// production wiring differ only in main.
type Provider interface {
	// Name returns the provider name (e.g. "openai", "lorem").
	Name() string

	// Stream invokes the model and returns a lazy sequence of raw text
	// fragments. The channel is closed when generation ends; cancellation
	// of ctx aborts the upstream call.
	Stream(ctx context.Context, req *GenerateRequest) (<-chan Fragment, error)
}
