package estimator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/piececount/puzzledex/internal/model"
	"github.com/piececount/puzzledex/internal/monitoring"
	"github.com/piececount/puzzledex/internal/resilience"
	"github.com/piececount/puzzledex/pkg/anthropic"
)

const estimatorMaxTokens = 1500

// Claude is an Estimator backed by a vision-capable Claude model. The model
// is forced to answer through the return_puzzle_prices tool so responses are
// always structured.
type Claude struct {
	client  anthropic.Client
	model   string
	images  *ImageFetcher
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	metrics *monitoring.Metrics
}

// ClaudeOption configures a Claude estimator.
type ClaudeOption func(*Claude)

// WithImageFetcher enables photo attachment for requests carrying ImageURL.
func WithImageFetcher(f *ImageFetcher) ClaudeOption {
	return func(c *Claude) { c.images = f }
}

// WithRateLimit caps outbound calls per second with the given burst.
func WithRateLimit(perSecond float64, burst int) ClaudeOption {
	return func(c *Claude) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithMetrics records call latency and token usage.
func WithMetrics(m *monitoring.Metrics) ClaudeOption {
	return func(c *Claude) { c.metrics = m }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) ClaudeOption {
	return func(c *Claude) { c.retry = cfg }
}

// NewClaude creates a Claude-backed estimator for the given model tag.
func NewClaude(client anthropic.Client, modelTag string, opts ...ClaudeOption) *Claude {
	c := &Claude{
		client: client,
		model:  modelTag,
		retry:  resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("anthropic", "estimate_prices")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Estimate prices the puzzle described by req. Structural problems in the
// model's answer surface as *ContractError; transport failures as wrapped
// transient errors.
func (c *Claude) Estimate(ctx context.Context, req Request) (*Estimation, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "estimator: rate limit wait")
		}
	}

	msg := anthropic.Message{Role: "user", Content: buildUserPrompt(req)}
	if req.ImageURL != "" && c.images != nil {
		mediaType, data, err := c.images.Fetch(ctx, req.ImageURL)
		if err != nil {
			// A puzzle can still be priced from its metadata alone.
			zap.L().Warn("estimator: proceeding without photo",
				zap.String("image_url", req.ImageURL),
				zap.Error(err),
			)
		} else {
			msg.Image = &anthropic.ImageAttachment{MediaType: mediaType, Data: data}
		}
	}

	apiReq := anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: estimatorMaxTokens,
		System:    systemPrompt,
		Messages:  []anthropic.Message{msg},
		Tools: []anthropic.Tool{{
			Name:        priceToolName,
			Description: "Return structured resale price estimates per country.",
			Properties:  priceToolProperties(),
			Required:    []string{"prices"},
		}},
		ForceTool: priceToolName,
	}

	start := time.Now()
	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, apiReq)
	})
	c.metrics.ObserveEstimator(time.Since(start))
	if err != nil {
		return nil, eris.Wrap(err, "estimator: claude call")
	}

	resp.Usage.LogCost(c.model, "price_estimate")
	c.metrics.AddTokens("input", resp.Usage.InputTokens)
	c.metrics.AddTokens("output", resp.Usage.OutputTokens)

	prices, err := extractPrices(resp)
	if err != nil {
		return nil, err
	}
	if err := validatePrices(prices); err != nil {
		return nil, err
	}

	return &Estimation{Prices: prices, Version: c.model}, nil
}

// extractPrices pulls the forced tool call out of the response content.
func extractPrices(resp *anthropic.MessageResponse) ([]model.PriceEstimate, error) {
	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.ToolName != priceToolName {
			continue
		}
		var payload struct {
			Prices []model.PriceEstimate `json:"prices"`
		}
		if err := json.Unmarshal(block.ToolInput, &payload); err != nil {
			return nil, &ContractError{Reason: fmt.Sprintf("malformed tool input: %v", err)}
		}
		return payload.Prices, nil
	}
	return nil, &ContractError{Reason: fmt.Sprintf("no %s tool call in response (stop reason %q)", priceToolName, resp.StopReason)}
}
