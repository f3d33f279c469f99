package agentkit

import (
	"context"

	"github.com/shillcollin/agentkit/core"
)

// Model is a resolved provider model. It fills the request's model name
// when the caller leaves it empty, so one provider client serves every
// model of that provider.
type Model struct {
	provider string
	name     string
	model    core.CompletionModel
}

// NewModel wraps a provider client as the named model.
func NewModel(provider, name string, model core.CompletionModel) *Model {
	return &Model{provider: provider, name: name, model: model}
}

// Provider returns the provider name, e.g. "openai".
func (m *Model) Provider() string { return m.provider }

// Name returns the provider's model identifier, e.g. "gpt-4o".
func (m *Model) Name() string { return m.name }

// String returns the "provider/model" reference.
func (m *Model) String() string { return m.provider + "/" + m.name }

// Unwrap returns the underlying provider client.
func (m *Model) Unwrap() core.CompletionModel { return m.model }

// Completion implements core.CompletionModel.
func (m *Model) Completion(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	return m.model.Completion(ctx, m.apply(req))
}

// Stream implements core.CompletionModel.
func (m *Model) Stream(ctx context.Context, req core.CompletionRequest) (*core.RawStream, error) {
	return m.model.Stream(ctx, m.apply(req))
}

func (m *Model) apply(req core.CompletionRequest) core.CompletionRequest {
	if req.Model == "" {
		req.Model = m.name
	}
	return req
}
