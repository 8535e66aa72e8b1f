package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/NissanArmada/Produck/pkg/errorsx"
	"github.com/NissanArmada/Produck/pkg/form"
	"github.com/NissanArmada/Produck/pkg/metrics"
	"github.com/NissanArmada/Produck/pkg/resilience"
)

// Outcome is the result of one background validation call. It is consumed
// once; it never feeds back into guided-fill state.
type Outcome struct {
	OK       bool   `json:"ok"`
	FollowUp string `json:"follow_up"`
	Value    string `json:"value"`
}

// Validator is the boundary the guided-fill machine launches in the
// background. Implementations must always resolve; failures are mapped into
// the Outcome, never raised.
type Validator interface {
	Validate(ctx context.Context, field form.FieldID, provisional map[form.FieldID]string) Outcome
}

type ClientConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Path      string `mapstructure:"path"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

func (c ClientConfig) withDefaults() ClientConfig {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Path == "" {
		c.Path = "/api/v1/validate-provisional"
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 10000
	}
	return c
}

// Client talks to the external validation service. One network call per
// Validate, plus a conditional cooldown write on 429. Nothing here ever
// returns an error to the caller.
type Client struct {
	cfg   ClientConfig
	httpc *http.Client
	store CooldownStore
	obs   metrics.Observer
	clock func() time.Time
}

const defaultRetryAfter = 60 * time.Second

var retrySecondsRe = regexp.MustCompile(`(?i)(?:in|after)\s*(\d+)\s*seconds?`)

func NewClient(cfg ClientConfig, store CooldownStore) *Client {
	cfg = cfg.withDefaults()
	if store == nil {
		store = NewMemoryStore()
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		store: store,
		obs:   metrics.NoopObserver{},
		clock: time.Now,
	}
}

func (c *Client) SetObserver(obs metrics.Observer) {
	if obs != nil {
		c.obs = obs
	}
}

// SetClock overrides the time source, for tests.
func (c *Client) SetClock(clock func() time.Time) {
	if clock != nil {
		c.clock = clock
	}
}

func (c *Client) Validate(ctx context.Context, field form.FieldID, provisional map[form.FieldID]string) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	now := c.clock()

	if until, err := c.store.Deadline(); err == nil && until.After(now) {
		remaining := int(math.Ceil(until.Sub(now).Seconds()))
		slog.Debug("validation_cooldown_active", "field", string(field), "remaining_s", remaining, "reason_code", string(errorsx.ReasonValidationCooldown))
		c.record(metrics.EventCooldownSkip, field)
		return rateLimitedOutcome(remaining)
	}

	payload := struct {
		Provisional map[form.FieldID]string `json:"provisional"`
		Field       form.FieldID            `json:"field"`
	}{Provisional: provisional, Field: field}
	body, err := json.Marshal(payload)
	if err != nil {
		return failureOutcome("Validation request failed. Please try again.")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return failureOutcome("Validation request failed. Please try again.")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		slog.Info("validation_request_error", "field", string(field), "reason_code", string(errorsx.ReasonValidationRequest), "error", err.Error())
		c.record(metrics.EventValidationFail, field)
		return failureOutcome("Validation request failed. Please try again.")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(metrics.EventValidationFail, field)
		return failureOutcome("Validation request failed. Please try again.")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out Outcome
		if err := json.Unmarshal(raw, &out); err != nil {
			slog.Info("validation_decode_error", "field", string(field), "reason_code", string(errorsx.ReasonValidationDecode), "error", err.Error())
			c.record(metrics.EventValidationFail, field)
			return failureOutcome("Validation request failed. Please try again.")
		}
		c.record(metrics.EventValidationOK, field)
		return out
	}

	return c.handleFailureStatus(resp, raw, field)
}

func (c *Client) handleFailureStatus(resp *http.Response, raw []byte, field form.FieldID) Outcome {
	var keys map[string]json.RawMessage
	structured := json.Unmarshal(raw, &keys) == nil && keys != nil
	_, hasFollowUp := keys["follow_up"]
	_, hasOK := keys["ok"]

	if resp.StatusCode == http.StatusTooManyRequests {
		retry := c.retryAfter(resp, raw)
		until := c.clock().Add(retry)
		if err := c.store.SetDeadline(until); err != nil {
			slog.Warn("cooldown_write_failed", "reason_code", string(errorsx.Reason(err)), "error", err.Error())
		}
		rlErr := resilience.RateLimitError{Service: "validation", RetryAfter: retry}
		slog.Info("validation_rate_limited", "field", string(field), "retry_s", int(retry.Seconds()), "reason_code", string(errorsx.ReasonValidationRateLimit), "error", rlErr.Error())
		c.record(metrics.EventRateLimit, field)
		if structured && (hasFollowUp || hasOK) {
			var out Outcome
			_ = json.Unmarshal(raw, &out)
			return out
		}
		return rateLimitedOutcome(int(retry.Seconds()))
	}

	if structured && (hasFollowUp || hasOK) {
		var out Outcome
		_ = json.Unmarshal(raw, &out)
		c.record(metrics.EventValidationFail, field)
		return out
	}

	slog.Info("validation_status_error", "field", string(field), "status", resp.StatusCode, "reason_code", string(errorsx.ReasonValidationRequest))
	c.record(metrics.EventValidationFail, field)
	followUp := strings.TrimSpace(string(raw))
	if followUp == "" {
		followUp = "Server validation failed. Please rephrase."
	}
	return failureOutcome(followUp)
}

// retryAfter extracts a retry hint from the Retry-After header, then from an
// "in/after N seconds" pattern in the body (including a structured follow_up
// field), defaulting to 60s.
func (c *Client) retryAfter(resp *http.Response, raw []byte) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if m := retrySecondsRe.FindSubmatch(raw); m != nil {
		if secs, err := strconv.Atoi(string(m[1])); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

func (c *Client) record(name string, field form.FieldID) {
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: c.clock(),
		Tags: map[string]string{"component": "validate", "field": string(field)},
	})
}

func rateLimitedOutcome(remainingSeconds int) Outcome {
	return Outcome{
		OK:       false,
		FollowUp: fmt.Sprintf("Validation service rate-limited. Please try again in %d seconds.", remainingSeconds),
	}
}

func failureOutcome(followUp string) Outcome {
	return Outcome{OK: false, FollowUp: followUp}
}

var _ Validator = (*Client)(nil)
