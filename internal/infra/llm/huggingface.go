// HuggingFaceProvider posts a flattened prompt to /models/{model} and walks
// its model list until one answers.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHuggingFaceURL is the hosted inference endpoint.
const DefaultHuggingFaceURL = "https://api-inference.huggingface.co"

// ErrMissingToken is returned by every call when no API token is configured.
var ErrMissingToken = errors.New("huggingface: api token not configured")

// DefaultHuggingFaceModels is the model list tried when none is configured.
var DefaultHuggingFaceModels = []string{
	"microsoft/DialoGPT-medium",
	"facebook/blenderbot-400M-distill",
	"microsoft/DialoGPT-small",
}

// HuggingFaceProvider implements LLMProvider against the HuggingFace
// Inference API.
type HuggingFaceProvider struct {
	baseURL    string
	token      string
	models     []string
	httpClient *http.Client
}

// NewHuggingFaceProvider creates a provider. An empty baseURL selects the
// hosted API and an empty model list selects DefaultHuggingFaceModels.
func NewHuggingFaceProvider(baseURL, token string, models []string) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = DefaultHuggingFaceURL
	}
	if len(models) == 0 {
		models = DefaultHuggingFaceModels
	}
	return &HuggingFaceProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		models:     append([]string(nil), models...),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type hfParameters struct {
	MaxLength   int     `json:"max_length,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	DoSample    bool    `json:"do_sample"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfGenerated struct {
	GeneratedText string `json:"generated_text"`
}

// ChatCompletion tries each model in order and returns the first answer.
// A request Model pins the call to that single model.
func (p *HuggingFaceProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.token == "" {
		return nil, ErrMissingToken
	}
	models := p.models
	if req.Model != "" {
		models = []string{req.Model}
	}

	maxLen := req.MaxTokens
	if maxLen == 0 {
		maxLen = 500
	}
	temp := req.Temperature
	if temp == 0 {
		temp = 0.7
	}
	body, err := json.Marshal(hfRequest{
		Inputs:     flattenMessages(req.Messages),
		Parameters: hfParameters{MaxLength: maxLen, Temperature: temp, DoSample: true},
	})
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, model := range models {
		text, err := p.generate(ctx, model, body)
		if err == nil {
			return &ChatResponse{Content: text, StopReason: "stop", Model: model}, nil
		}
		errs = append(errs, fmt.Errorf("model %s: %w", model, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (p *HuggingFaceProvider) generate(ctx context.Context, model string, body []byte) (string, error) {
	path := "/models/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("huggingface post %s: build request: %w", path, err)
	}
	req.Header.Set(headerContentType, mimeJSON)
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("huggingface post %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Provider: "huggingface", Path: path, Code: resp.StatusCode}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("huggingface read %s: %w", path, err)
	}
	return parseGenerated(raw)
}

// parseGenerated accepts both `[{"generated_text": ...}]` and
// `{"generated_text": ...}` bodies.
func parseGenerated(raw []byte) (string, error) {
	var list []hfGenerated
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 && list[0].GeneratedText != "" {
			return list[0].GeneratedText, nil
		}
		return "", errors.New("huggingface: empty generation")
	}
	var one hfGenerated
	if err := json.Unmarshal(raw, &one); err != nil {
		return "", fmt.Errorf("decode generation: %w", err)
	}
	if one.GeneratedText == "" {
		return "", errors.New("huggingface: empty generation")
	}
	return one.GeneratedText, nil
}

func flattenMessages(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if c := strings.TrimSpace(m.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ModelInfo returns metadata for the first configured model.
func (p *HuggingFaceProvider) ModelInfo() ModelMeta {
	return ModelMeta{
		ID:        p.models[0],
		Provider:  "huggingface",
		Version:   "inference-api",
		MaxTokens: 1024,
	}
}

// HealthCheck only verifies configuration; the inference API has no cheap
// liveness endpoint that does not consume quota.
func (p *HuggingFaceProvider) HealthCheck(_ context.Context) error {
	if p.token == "" {
		return ErrMissingToken
	}
	return nil
}
