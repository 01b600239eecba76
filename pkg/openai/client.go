// Package openai asks an OpenAI chat model for planting advice.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/muudzo/moometrics2/pkg/httpclient"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel 默认模型，需要支持 JSON 输出格式
	DefaultModel = "gpt-4o"

	// DefaultTimeout 默认超时时间
	DefaultTimeout = 30 * time.Second

	dateLayout = "2006-01-02"

	systemPrompt = "You are an expert agricultural advisor with deep knowledge of " +
		"crop management, planting schedules, and harvest timing."
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("openai: api key not configured")

	// ErrMalformedResponse is returned when the model answer is not the expected JSON document.
	ErrMalformedResponse = errors.New("openai: malformed model response")
)

// Config configures an Advisor.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides https://api.openai.com/v1, e.g. for Azure-compatible gateways.
	BaseURL  string
	Timeout  time.Duration
	ProxyURL string
}

// PlantingQuery describes the crop and location to advise on.
type PlantingQuery struct {
	CropType  string
	Latitude  float64
	Longitude float64
	SoilType  string
	Season    string
}

// PlantingAdvice is the validated model answer.
type PlantingAdvice struct {
	PlantingDate    string   `json:"planting_date"`
	HarvestDate     string   `json:"harvest_date"`
	Confidence      float64  `json:"confidence"`
	Recommendations []string `json:"recommendations"`
}

// Advisor wraps a go-openai client.
type Advisor struct {
	client     *goopenai.Client
	model      string
	configured bool
}

// NewAdvisor creates an Advisor. An empty API key is accepted: calls then fail with ErrMissingAPIKey.
func NewAdvisor(cfg Config) (*Advisor, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	hc, err := httpclient.New(cfg.ProxyURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.HTTPClient = hc
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Advisor{
		client:     goopenai.NewClientWithConfig(clientCfg),
		model:      model,
		configured: apiKey != "",
	}, nil
}

// Configured reports whether an API key is present.
func (a *Advisor) Configured() bool {
	return a.configured
}

// PlantingAdvice asks the model for planting and harvest dates.
func (a *Advisor) PlantingAdvice(ctx context.Context, q PlantingQuery) (*PlantingAdvice, error) {
	if !a.configured {
		return nil, ErrMissingAPIKey
	}

	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: a.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: buildPrompt(q)},
		},
		Temperature: 0.7,
		MaxTokens:   500,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	return parseAdvice(resp.Choices[0].Message.Content)
}

func buildPrompt(q PlantingQuery) string {
	soil := q.SoilType
	if soil == "" {
		soil = "unknown"
	}
	season := q.Season
	if season == "" {
		season = "current"
	}

	var b strings.Builder
	b.WriteString("As an agricultural expert, provide planting and harvest recommendations for:\n")
	fmt.Fprintf(&b, "- Crop: %s\n", q.CropType)
	fmt.Fprintf(&b, "- Location: Latitude %g, Longitude %g\n", q.Latitude, q.Longitude)
	fmt.Fprintf(&b, "- Soil Type: %s\n", soil)
	fmt.Fprintf(&b, "- Current Season: %s\n\n", season)
	b.WriteString("Provide:\n")
	b.WriteString("1. Recommended planting date (format: YYYY-MM-DD)\n")
	b.WriteString("2. Expected harvest date (format: YYYY-MM-DD)\n")
	b.WriteString("3. Confidence level (0.0 to 1.0)\n")
	b.WriteString("4. 3-5 specific recommendations for optimal growth\n\n")
	b.WriteString("Format your response as JSON with keys: planting_date, harvest_date, confidence, recommendations (array)")
	return b.String()
}

// parseAdvice decodes and validates the model output.
func parseAdvice(content string) (*PlantingAdvice, error) {
	content = strings.TrimSpace(content)
	// 个别模型仍会包一层 markdown 代码块
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var advice PlantingAdvice
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &advice); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	planting, err := time.Parse(dateLayout, advice.PlantingDate)
	if err != nil {
		return nil, fmt.Errorf("%w: planting_date %q", ErrMalformedResponse, advice.PlantingDate)
	}
	harvest, err := time.Parse(dateLayout, advice.HarvestDate)
	if err != nil {
		return nil, fmt.Errorf("%w: harvest_date %q", ErrMalformedResponse, advice.HarvestDate)
	}
	if harvest.Before(planting) {
		return nil, fmt.Errorf("%w: harvest before planting", ErrMalformedResponse)
	}
	if advice.Confidence < 0 || advice.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, advice.Confidence)
	}

	recs := advice.Recommendations[:0]
	for _, r := range advice.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			recs = append(recs, r)
		}
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no recommendations", ErrMalformedResponse)
	}
	advice.Recommendations = recs

	return &advice, nil
}

// StatusCode returns the HTTP status carried by a go-openai error, or 0.
func StatusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
