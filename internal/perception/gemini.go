package perception

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ghostbot/internal/config"
	"ghostbot/internal/logging"
	"ghostbot/internal/types"
	"ghostbot/internal/usage"

	"google.golang.org/genai"
)

// GeminiClient implements Model for the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	safety  []*genai.SafetySetting
	timeout time.Duration
	tracker *usage.Tracker
}

// NewGeminiClient creates a client bound to one API key.
func NewGeminiClient(ctx context.Context, apiKey string, cfg config.LLMConfig, tracker *usage.Tracker) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		safety:  SafetySettings(cfg.Safety),
		timeout: timeout,
		tracker: tracker,
	}, nil
}

// SafetySettings converts a category→threshold map into request settings,
// ordered by category.
func SafetySettings(m map[string]string) []*genai.SafetySetting {
	categories := make([]string, 0, len(m))
	for category := range m {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	settings := make([]*genai.SafetySetting, 0, len(m))
	for _, category := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  genai.HarmCategory(strings.ToUpper(strings.TrimSpace(category))),
			Threshold: genai.HarmBlockThreshold(strings.ToUpper(strings.TrimSpace(m[category]))),
		})
	}
	return settings
}

// Model returns the model name.
func (c *GeminiClient) Model() string {
	return c.model
}

func (c *GeminiClient) buildConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Safety {
		cfg.SafetySettings = c.safety
	}
	return cfg
}

// Contents converts history turns plus the request prompt and media into
// API contents. Media is attached to the final user turn.
func Contents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Turns)+1)
	for _, turn := range req.Turns {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, genai.NewPartFromText(p))
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: roleOf(turn.Role), Parts: parts})
	}

	var final []*genai.Part
	if req.Prompt != "" {
		final = append(final, genai.NewPartFromText(req.Prompt))
	}
	for _, m := range req.Media {
		final = append(final, genai.NewPartFromBytes(m.Data, m.MIMEType))
	}
	if len(final) > 0 {
		contents = append(contents, genai.NewContentFromParts(final, genai.RoleUser))
	}
	return contents
}

func roleOf(role types.Role) string {
	if role == types.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// blocked reports whether a response was withheld rather than empty.
func blocked(resp *genai.GenerateContentResponse) bool {
	if resp == nil {
		return false
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return true
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		switch cand.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonRecitation,
			genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
			return true
		}
	}
	return false
}

func (c *GeminiClient) track(ctx context.Context, operation string, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	c.tracker.Track(ctx, c.model, operation,
		int(resp.UsageMetadata.PromptTokenCount),
		int(resp.UsageMetadata.CandidatesTokenCount))
}

func (c *GeminiClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Generate implements Model.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	op := operationOf(req)
	start := time.Now()
	logging.APIDebug("[Gemini] %s: model=%s turns=%d media=%d", op, c.model, len(req.Turns), len(req.Media))

	resp, err := c.client.Models.GenerateContent(ctx, c.model, Contents(req), c.buildConfig(req))
	if err != nil {
		usage.RecordModelCall(op, "error", time.Since(start).Seconds())
		logging.APIWarn("[Gemini] %s failed after %v: %v", op, time.Since(start), err)
		return "", fmt.Errorf("gemini %s: %w", op, err)
	}
	c.track(ctx, op, resp)

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		if blocked(resp) {
			usage.RecordModelCall(op, "blocked", time.Since(start).Seconds())
			logging.APIWarn("[Gemini] %s: response blocked", op)
			return "", ErrBlocked
		}
		usage.RecordModelCall(op, "empty", time.Since(start).Seconds())
		return "", ErrEmpty
	}

	usage.RecordModelCall(op, "success", time.Since(start).Seconds())
	logging.APIDebug("[Gemini] %s: completed in %v (%d chars)", op, time.Since(start), len(text))
	return text, nil
}

// Stream implements Model.
func (c *GeminiClient) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	textChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(errorChan)
		defer close(textChan)

		ctx, cancel := c.withTimeout(ctx)
		defer cancel()

		op := operationOf(req)
		start := time.Now()
		skipped := 0
		var last *genai.GenerateContentResponse

		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, Contents(req), c.buildConfig(req)) {
			if err != nil {
				usage.RecordModelCall(op, "error", time.Since(start).Seconds())
				logging.APIWarn("[Gemini] %s: stream error after %v: %v", op, time.Since(start), err)
				errorChan <- fmt.Errorf("gemini %s: %w", op, err)
				return
			}
			last = resp
			text := resp.Text()
			if text == "" {
				if blocked(resp) {
					skipped++
					logging.APIWarn("[Gemini] %s: blocked chunk skipped", op)
				}
				continue
			}
			select {
			case textChan <- text:
			case <-ctx.Done():
				usage.RecordModelCall(op, "cancelled", time.Since(start).Seconds())
				errorChan <- ctx.Err()
				return
			}
		}

		c.track(ctx, op, last)
		usage.RecordModelCall(op, "success", time.Since(start).Seconds())
		logging.API("[Gemini] %s: stream completed in %v (skipped=%d)", op, time.Since(start), skipped)
	}()

	return textChan, errorChan
}

func operationOf(req Request) string {
	if req.Operation == "" {
		return "generate"
	}
	return req.Operation
}
