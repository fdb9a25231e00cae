package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"wayrafrost/internal/risk"
	"wayrafrost/internal/types"
)

const classifierSource = "classifier"

// Prediction is the classifier's output for one feature vector.
type Prediction struct {
	Class         risk.Class `json:"class"`
	Probabilities []float64  `json:"probabilities"`
}

// Confidence is the probability of the predicted class.
func (p Prediction) Confidence() float64 {
	if int(p.Class) < len(p.Probabilities) {
		return p.Probabilities[p.Class]
	}
	return 0
}

// FrostProbability is the probability of any frost class (1 - P(no risk)).
func (p Prediction) FrostProbability() float64 {
	if len(p.Probabilities) == 0 {
		return 0
	}
	return 1 - p.Probabilities[risk.NoRisk]
}

// ClassifierClient calls the frost classifier model server.
type ClassifierClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewClassifierClient creates a ClassifierClient for the model server at
// baseURL.
func NewClassifierClient(base *BaseClient, baseURL string, logger *slog.Logger) *ClassifierClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassifierClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

type schemaResponse struct {
	Features     []string `json:"features"`
	ModelVersion string   `json:"model_version"`
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	Class         *int      `json:"class"`
	Probabilities []float64 `json:"probabilities"`
}

// Features returns the model's declared feature order.
func (c *ClassifierClient) Features(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/schema", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create classifier request", err)
	}

	var out schemaResponse
	if err := c.do(req, "Features", &out); err != nil {
		return nil, err
	}
	if len(out.Features) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamClassifier, "classifier declared no features", nil)
	}
	return out.Features, nil
}

// Predict classifies values, which must already be in the declared order.
// A response with an out-of-range class or a malformed probability vector is
// an upstream_classifier error.
func (c *ClassifierClient) Predict(ctx context.Context, values []float64) (*Prediction, error) {
	body, err := json.Marshal(predictRequest{Features: values})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode classifier request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create classifier request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out predictResponse
	if err := c.do(req, "Predict", &out); err != nil {
		return nil, err
	}

	if out.Class == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamClassifier, "classifier response has no class", nil)
	}
	cls, err := risk.ParseClass(*out.Class)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamClassifier, "classifier returned an invalid class", err)
	}
	if err := checkProbabilities(out.Probabilities); err != nil {
		return nil, err
	}
	return &Prediction{Class: cls, Probabilities: out.Probabilities}, nil
}

func checkProbabilities(p []float64) error {
	if len(p) != risk.NumClasses {
		return types.NewAppError(types.ErrCodeUpstreamClassifier,
			fmt.Sprintf("classifier returned %d probabilities, want %d", len(p), risk.NumClasses), nil)
	}
	for _, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return types.NewAppError(types.ErrCodeUpstreamClassifier,
				fmt.Sprintf("classifier returned probability %v", v), nil)
		}
	}
	return nil
}

func (c *ClassifierClient) do(req *http.Request, op string, out any) error {
	resp, err := c.base.Do(req)
	if err != nil {
		return wrapError(classifierSource, types.ErrCodeUpstreamClassifier, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return responseError(c.logger, classifierSource, types.ErrCodeUpstreamClassifier, op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamClassifier, "failed to decode classifier response", err)
	}
	return nil
}
