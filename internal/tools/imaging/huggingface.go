// Package imaging turns a text prompt into image bytes through the Hugging
// Face inference API.
package imaging

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

	"ghostbot/internal/logging"
	"ghostbot/internal/usage"
)

// DefaultEndpoint is Stable Diffusion XL base 1.0.
const DefaultEndpoint = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0"

var (
	ErrNotConfigured   = errors.New("image synthesis token not configured")
	ErrModelLoading    = errors.New("image model is loading")
	ErrTimeout         = errors.New("image synthesis timed out")
	ErrInvalidResponse = errors.New("invalid image synthesis response")
)

// APIError is a non-image reply from the inference endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	Endpoint   string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls a text-to-image inference endpoint.
type Client struct {
	endpoint   string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a Client. A missing token is reported on Generate so a
// bot without image support still starts.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
}

// Configured reports whether a token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

type inferenceError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// Generate submits prompt and returns the image bytes.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryTools, "ImageGenerate")
	defer timer.Stop()

	data, err := c.generate(ctx, prompt)
	status := "success"
	if err != nil {
		status = "error"
		logging.ToolsWarn("Image synthesis failed: %v", err)
	}
	usage.RecordToolCall("generate_image", status)
	return data, err
}

func (c *Client) generate(ctx context.Context, prompt string) ([]byte, error) {
	payload, err := json.Marshal(inferenceRequest{Inputs: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "image/jpeg, image/png")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK && strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		logging.ToolsDebug("Image synthesis returned %d bytes", len(body))
		return body, nil
	}

	var apiErr inferenceError
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr != nil || apiErr.Error == "" {
		return nil, fmt.Errorf("%w: HTTP %d, content-type %q", ErrInvalidResponse, resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if strings.Contains(apiErr.Error, "is currently loading") {
		return nil, fmt.Errorf("%w (estimated %.0fs)", ErrModelLoading, apiErr.EstimatedTime)
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
}

// UserMessage maps a Generate error to the text shown in chat.
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConfigured):
		return "⚙️ Fitur pembuatan gambar belum dikonfigurasi oleh pemilik bot."
	case errors.Is(err, ErrModelLoading):
		return "⏳ Model sedang dimuat. Coba lagi."
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Waktu tunggu habis saat mencoba membuat gambar. Silakan coba lagi."
	case errors.Is(err, ErrInvalidResponse):
		return "🖼️❎ Gagal membuat gambar karena respons tidak valid."
	case errors.As(err, &apiErr):
		return "🖼️❎ Gagal membuat gambar karena gangguan teknis."
	default:
		return "⚠️ Terjadi kesalahan tak terduga."
	}
}
