// Package openweather is a small client for the OpenWeatherMap current weather API.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/muudzo/moometrics2/pkg/httpclient"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL OpenWeatherMap 2.5 API 地址
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	// DefaultTimeout 默认超时时间
	DefaultTimeout = 10 * time.Second

	// placeholderAPIKey 是示例配置中的占位符，等同于未配置
	placeholderAPIKey = "YOUR_API_KEY"

	// maxErrorBody 错误响应体最多读取的字节数
	maxErrorBody = 512
)

var (
	// ErrMissingAPIKey is returned when no usable API key is configured.
	ErrMissingAPIKey = errors.New("openweather: api key not configured")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded or lacks required fields.
	ErrMalformedResponse = errors.New("openweather: malformed response")
)

// APIError is a non-2xx answer from OpenWeatherMap.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openweather: http %d", e.StatusCode)
	}
	return fmt.Sprintf("openweather: http %d: %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RateLimit is the sustained outbound requests per second, <= 0 disables limiting.
	RateLimit float64
	RateBurst int
	ProxyURL  string
}

// Observation is the current weather at one point, as reported by the API.
type Observation struct {
	Temperature float64
	Condition   string
	Location    string
	Humidity    int
	WindSpeed   float64
	Icon        string
}

// Client calls the OpenWeatherMap API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client. An empty API key is accepted: calls then fail with ErrMissingAPIKey.
func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	hc, err := httpclient.New(cfg.ProxyURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("openweather: %w", err)
	}

	limit := rate.Inf
	burst := cfg.RateBurst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if burst <= 0 {
			burst = 1
		}
	}

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: hc,
		limiter:    rate.NewLimiter(limit, burst),
	}, nil
}

// Configured reports whether the client holds a real API key.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiKey != placeholderAPIKey
}

// currentResponse 只解析需要的字段，指针用于区分缺失与零值
type currentResponse struct {
	Name string `json:"name"`
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
		Icon string `json:"icon"`
	} `json:"weather"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
}

// Current fetches the current weather for a coordinate in metric units.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Observation, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("openweather: rate limit wait: %w", err)
	}

	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("units", "metric")
	query.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("openweather: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error 会带上完整 URL（含 appid），只保留底层错误
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("openweather: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var payload currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return payload.observation()
}

func (p *currentResponse) observation() (*Observation, error) {
	switch {
	case p.Main == nil || p.Main.Temp == nil || p.Main.Humidity == nil:
		return nil, fmt.Errorf("%w: missing main.temp or main.humidity", ErrMalformedResponse)
	case len(p.Weather) == 0:
		return nil, fmt.Errorf("%w: missing weather[0]", ErrMalformedResponse)
	case p.Wind == nil || p.Wind.Speed == nil:
		return nil, fmt.Errorf("%w: missing wind.speed", ErrMalformedResponse)
	}

	location := p.Name
	if location == "" {
		location = "Unknown Location"
	}

	return &Observation{
		Temperature: *p.Main.Temp,
		Condition:   p.Weather[0].Main,
		Location:    location,
		Humidity:    *p.Main.Humidity,
		WindSpeed:   *p.Wind.Speed,
		Icon:        p.Weather[0].Icon,
	}, nil
}

// errorMessage extracts {"message": "..."} from an error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}
