package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
)

var ErrModelUnavailable = apperr.New(502, "Model service unavailable")

// Classifier scores a preprocessed image tensor, returning one probability
// per class.
type Classifier interface {
	Classify(ctx context.Context, tensor [][][]float32) ([]float64, error)
}

// RiskModel predicts the lesion class from tabular clinical features.
type RiskModel interface {
	Predict(ctx context.Context, features map[string]float64) (int, error)
}

type ClientConfig struct {
	ImageURL   string
	TabularURL string
	Timeout    time.Duration
	Retries    int
	RetryWait  time.Duration
}

// ServingClient talks to models exposed with the TensorFlow Serving REST
// predict API: {"instances": [...]} in, {"predictions": [...]} out.
type ServingClient struct {
	http       *resty.Client
	imageURL   string
	tabularURL string
	logger     zerolog.Logger
}

func NewServingClient(cfg ClientConfig, logger zerolog.Logger) *ServingClient {
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(4 * cfg.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ServingClient{
		http:       client,
		imageURL:   cfg.ImageURL,
		tabularURL: cfg.TabularURL,
		logger:     logger,
	}
}

type predictRequest struct {
	Instances []any `json:"instances"`
}

type predictResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
	Error       string            `json:"error"`
}

func (c *ServingClient) predict(ctx context.Context, url string, instance any) (json.RawMessage, error) {
	var out predictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(predictRequest{Instances: []any{instance}}).
		SetResult(&out).
		SetError(&out).
		Post(url)
	if err != nil {
		c.logger.Error().Err(err).Str("url", url).Msg("model call failed")
		return nil, ErrModelUnavailable
	}
	if resp.IsError() {
		c.logger.Error().Int("status", resp.StatusCode()).Str("model_error", out.Error).Str("url", url).Msg("model returned an error")
		return nil, ErrModelUnavailable
	}
	if len(out.Predictions) != 1 {
		return nil, fmt.Errorf("expected 1 prediction, got %d", len(out.Predictions))
	}
	return out.Predictions[0], nil
}

func (c *ServingClient) Classify(ctx context.Context, tensor [][][]float32) ([]float64, error) {
	raw, err := c.predict(ctx, c.imageURL, tensor)
	if err != nil {
		return nil, err
	}
	var probs []float64
	if err := json.Unmarshal(raw, &probs); err != nil {
		return nil, fmt.Errorf("decode class probabilities: %w", err)
	}
	return probs, nil
}

// Predict accepts either a scalar or a single-element vector per instance.
func (c *ServingClient) Predict(ctx context.Context, features map[string]float64) (int, error) {
	raw, err := c.predict(ctx, c.tabularURL, features)
	if err != nil {
		return 0, err
	}
	var scalar float64
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return int(math.Round(scalar)), nil
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) != 1 {
		return 0, fmt.Errorf("unexpected prediction %s", string(raw))
	}
	return int(math.Round(vec[0])), nil
}
