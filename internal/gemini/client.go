// Package gemini adds an optional one-line comment to lunch suggestions using Google's
// Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/edgard/ohirun/internal/config"
	"github.com/edgard/ohirun/internal/lunch"
)

// Client comments on a lunch decision.
type Client interface {
	CommentOnLunch(ctx context.Context, d *lunch.Decision) (string, error)
}

type sdkClient struct {
	genaiClient      *genai.Client
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	timeout          time.Duration
	maxRetries       int
	retryDelay       time.Duration
	breaker          *gobreaker.CircuitBreaker
}

const (
	// breakerFailures consecutive failed comments open the breaker; suggestions then go out
	// without a comment until breakerCooldown has passed.
	breakerFailures = 5
	breakerCooldown = time.Minute
)

// ErrCommentaryUnavailable is returned while the breaker is open.
var ErrCommentaryUnavailable = errors.New("gemini commentary temporarily unavailable")

var commentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"comment": {Type: genai.TypeString, Description: "One friendly sentence about the suggested lunch."},
	},
	Required: []string{"comment"},
}

// NewClient creates a Gemini client from cfg.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature:      &cfg.Temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   commentSchema,
	}
	if cfg.SystemInstruction != "" {
		baseCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:      gi,
		log:              logger,
		contentConfig:    baseCfg,
		defaultModelName: cfg.ModelName,
		timeout:          cfg.Timeout,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       cfg.RetryDelay,
		breaker:          newBreaker(logger),
	}, nil
}

func (c *sdkClient) CommentOnLunch(ctx context.Context, d *lunch.Decision) (string, error) {
	if d == nil {
		return "", errors.New("decision is required")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{genai.NewContentFromText(lunchPrompt(d), genai.RoleUser)}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, c.contentConfig)
		if err != nil {
			return nil, err
		}
		return c.extractTextFromResponse(ctx, resp)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrCommentaryUnavailable
		}
		return "", err
	}
	return parseComment(out.(string))
}

func newBreaker(log *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := retry.DoWithData(
		func() (*genai.GenerateContentResponse, error) {
			return c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)+1),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetriable),
		retry.OnRetry(func(n uint, err error) {
			c.log.InfoContext(ctx, "Retrying Gemini API call", "attempt", n+1, "delay", c.retryDelay, "error", err)
		}),
	)
	if err != nil {
		c.log.WarnContext(ctx, "Gemini API call failed", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return resp, nil
}

// isRetriable reports whether err is a transient server-side failure.
func isRetriable(err error) bool {
	var apiErr genai.APIError
	return errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503)
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := string(resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.WarnContext(ctx, "Gemini request blocked", "reason", reason)
		return "", fmt.Errorf("blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned empty content")
	}

	return resp.Text(), nil
}

// lunchPrompt describes the decision for the model.
func lunchPrompt(d *lunch.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "店舗: %s", d.Store.Name)
	if d.Store.Genre != "" {
		fmt.Fprintf(&b, "（%s）", d.Store.Genre)
	}
	fmt.Fprintf(&b, "\n食べ物: %s", d.Meal.Name)
	if d.Meal.FoodTypeName != "" {
		fmt.Fprintf(&b, "（%s）", d.Meal.FoodTypeName)
	}
	if d.Meal.Description != "" {
		fmt.Fprintf(&b, "\n説明: %s", d.Meal.Description)
	}
	if d.Price != nil {
		fmt.Fprintf(&b, "\n価格: %s円", strconv.FormatFloat(*d.Price, 'f', -1, 64))
	}
	return b.String()
}

// parseComment extracts the comment from the JSON the model was asked to return.
func parseComment(text string) (string, error) {
	var out struct {
		Comment string `json:"comment"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return "", fmt.Errorf("invalid comment JSON: %w", err)
	}

	for _, line := range strings.Split(plainText(out.Comment), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", errors.New("gemini returned an empty comment")
}
