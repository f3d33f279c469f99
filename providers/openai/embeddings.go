package openai

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shillcollin/agentkit/core"
	"github.com/shillcollin/agentkit/internal/httpclient"
	"github.com/shillcollin/agentkit/obs"
)

// maxEmbeddingBatch is the API's input array limit.
const maxEmbeddingBatch = 2048

// EmbeddingModel implements core.EmbeddingModel over the /embeddings endpoint.
type EmbeddingModel struct {
	client     *Client
	model      string
	dimensions int
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage *openAIUsage `json:"usage"`
}

// EmbeddingModel returns an embedding model. dimensions shortens vectors of
// text-embedding-3 models; zero keeps the model default.
func (c *Client) EmbeddingModel(model string, dimensions int) *EmbeddingModel {
	if model == "" {
		model = string(TextEmbedding3Small)
	}
	return &EmbeddingModel{client: c, model: model, dimensions: dimensions}
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
	provider := m.client.opts.provider
	ctx, recorder := obs.StartRequest(ctx, "providers."+provider+".Embed",
		attribute.String("ai.provider", provider),
		attribute.String("ai.operation", "embeddings"),
		attribute.String("ai.model", m.model),
	)
	var usageTokens obs.UsageTokens
	defer func() { recorder.End(err, usageTokens) }()

	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > maxEmbeddingBatch {
		return nil, core.NewCompletionError(core.RequestError,
			fmt.Sprintf("%d inputs exceed the batch limit of %d", len(texts), maxEmbeddingBatch),
			core.WithProvider(provider))
	}
	resp, err := m.client.doRequest(ctx, "/embeddings", embeddingRequest{
		Model:      m.model,
		Input:      texts,
		Dimensions: m.dimensions,
	})
	if err != nil {
		return nil, err
	}
	var out embeddingResponse
	if err := httpclient.DecodeJSON(provider, resp.Body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, core.NewCompletionError(core.ResponseError,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(out.Data)),
			core.WithProvider(provider))
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	embeddings := make([]core.Embedding, len(texts))
	for i, item := range out.Data {
		embeddings[i] = core.Embedding{Document: texts[i], Vector: item.Embedding}
	}
	usageTokens = obs.UsageFromCore(out.Usage.toCore())
	return embeddings, nil
}
