package gemini

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/httpclient"
	"github.com/shillcollin/agentkit/obs"
)

// maxEmbeddingBatch is the batchEmbedContents request limit.
const maxEmbeddingBatch = 100

// EmbeddingModel implements core.EmbeddingModel over batchEmbedContents.
type EmbeddingModel struct {
	client     *Client
	model      string
	dimensions int
}

// EmbeddingModel returns an embedding model. dimensions truncates output
// vectors; zero keeps the model default.
func (c *Client) EmbeddingModel(model string, dimensions int) *EmbeddingModel {
	if model == "" {
		model = string(GeminiEmbedding001)
	}
	return &EmbeddingModel{client: c, model: trimModelPrefix(model), dimensions: dimensions}
}

// Dimensions implements core.EmbeddingModel.
func (m *EmbeddingModel) Dimensions() int {
	if m.dimensions > 0 {
		return m.dimensions
	}
	return embeddingDimensions(m.model)
}

// MaxBatch implements core.EmbeddingModel.
func (m *EmbeddingModel) MaxBatch() int { return maxEmbeddingBatch }

// Embed implements core.EmbeddingModel.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string) (_ []core.Embedding, err error) {
	ctx, recorder := obs.StartRequest(ctx, "providers.gemini.Embed",
		attribute.String("ai.provider", provider),
		attribute.String("ai.operation", "batchEmbedContents"),
		attribute.String("ai.model", m.model),
	)
	defer func() { recorder.End(err, obs.UsageTokens{}) }()

	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > maxEmbeddingBatch {
		return nil, core.NewCompletionError(core.RequestError,
			fmt.Sprintf("%d inputs exceed the batch limit of %d", len(texts), maxEmbeddingBatch),
			core.WithProvider(provider))
	}
	req := batchEmbedRequest{Requests: make([]embedContentRequest, len(texts))}
	for i, text := range texts {
		req.Requests[i] = embedContentRequest{
			Model:                "models/" + m.model,
			Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
			OutputDimensionality: m.dimensions,
		}
	}
	resp, err := m.client.doRequest(ctx, m.model, ":batchEmbedContents", nil, req)
	if err != nil {
		return nil, err
	}
	var out batchEmbedResponse
	if err := httpclient.DecodeJSON(provider, resp.Body, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, core.NewCompletionError(core.ResponseError,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(out.Embeddings)),
			core.WithProvider(provider))
	}
	embeddings := make([]core.Embedding, len(texts))
	for i, e := range out.Embeddings {
		embeddings[i] = core.Embedding{Document: texts[i], Vector: e.Values}
	}
	return embeddings, nil
}
