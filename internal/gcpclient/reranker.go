package gcpclient

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/biorag/engine/internal/service"
)

// CrossEncoderAdapter implements service.CrossEncoder against a cross-encoder
// model deployed to a Vertex AI endpoint (the donor's former sentence-
// transformers model, served remotely rather than in-process, per §5's
// "cross-encoder invocation that dispatches to a remote model").
type CrossEncoderAdapter struct {
	client    *aiplatform.PredictionClient
	endpoint  string
	modelName string
}

// NewCrossEncoderAdapter creates a CrossEncoderAdapter. endpoint is the full
// Vertex AI endpoint resource name:
// projects/{p}/locations/{l}/endpoints/{id}
func NewCrossEncoderAdapter(ctx context.Context, location, endpoint, modelName string) (*CrossEncoderAdapter, error) {
	apiEndpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)
	client, err := aiplatform.NewPredictionClient(ctx, option.WithEndpoint(apiEndpoint))
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewCrossEncoderAdapter: %w", err)
	}
	return &CrossEncoderAdapter{client: client, endpoint: endpoint, modelName: modelName}, nil
}

var _ service.CrossEncoder = (*CrossEncoderAdapter)(nil)

func (a *CrossEncoderAdapter) ModelName() string { return a.modelName }

// Score sends one (query, text) pair per prediction instance and returns the
// cross-encoder relevance score for each, in the same order as texts.
func (a *CrossEncoderAdapter) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	instances := make([]*structpb.Value, len(texts))
	for i, text := range texts {
		instance, err := structpb.NewStruct(map[string]any{
			"query": query,
			"text":  text,
		})
		if err != nil {
			return nil, fmt.Errorf("gcpclient.CrossEncoder.Score: build instance: %w", err)
		}
		instances[i] = structpb.NewStructValue(instance)
	}

	req := &aiplatformpb.PredictRequest{
		Endpoint:  a.endpoint,
		Instances: instances,
	}

	resp, err := a.client.Predict(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.CrossEncoder.Score: %w", err)
	}
	if len(resp.Predictions) != len(texts) {
		return nil, fmt.Errorf("gcpclient.CrossEncoder.Score: endpoint returned %d predictions for %d inputs", len(resp.Predictions), len(texts))
	}

	scores := make([]float64, len(texts))
	for i, pred := range resp.Predictions {
		scores[i] = predictionScore(pred)
	}
	return scores, nil
}

// predictionScore extracts a scalar score from a prediction value, handling
// both a bare number and a {"score": number} struct shape.
func predictionScore(v *structpb.Value) float64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	if s := v.GetStructValue(); s != nil {
		if scoreField, ok := s.Fields["score"]; ok {
			return scoreField.GetNumberValue()
		}
	}
	return 0
}

// Close releases the underlying gRPC connection.
func (a *CrossEncoderAdapter) Close() {
	a.client.Close()
}
