package embeddings

import (
	"context"

	"github.com/sashabaranov/go-openai"
	pkgerrors "prompt-lineage/backend/pkg/errors"
	"prompt-lineage/backend/pkg/logger"
	"go.uber.org/zap"
)

// Adapter fetches text embeddings from an OpenAI-compatible endpoint.
// Embeddings are optional for the engine: a nil *Adapter degrades the
// semantic signal to its token-overlap fallback.
type Adapter struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewAdapter creates an adapter against the given base URL. An empty base
// URL means the default OpenAI endpoint.
func NewAdapter(baseURL, apiKey, model string) *Adapter {
	// Local gateways usually accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL + "/v1"
	}

	return &Adapter{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger.Get(),
	}
}

// Model returns the configured embedding model
func (a *Adapter) Model() string {
	return a.model
}

// Embed returns the embedding vector for one text
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(a.model),
	})
	if err != nil {
		a.logger.Warn("Embedding request failed", zap.String("model", a.model), zap.Error(err))
		return nil, pkgerrors.NewEmbeddingFailed(a.model, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, pkgerrors.NewEmbeddingFailed(a.model, nil)
	}
	return resp.Data[0].Embedding, nil
}
