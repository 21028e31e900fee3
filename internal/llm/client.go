package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client talks to a local OpenAI-compatible model server (LM Studio, Ollama
// in compatibility mode, etc). Requests are independent and stateless; the
// only shared state is the selected model id and the health tracker.
type Client struct {
	baseURL string
	http    *http.Client
	policy  RetryPolicy
	tracker *Tracker
	logger  *zap.Logger

	mu      sync.RWMutex
	modelID string
}

// InvokeOptions are the per-call generation parameters.
type InvokeOptions struct {
	MaxTokens   int
	Temperature float64
	// Timeout bounds a single attempt. Zero means the caller's context is
	// the only bound.
	Timeout time.Duration
}

// NewClient creates a model client for the given base URL. modelID may be
// empty, in which case Probe selects the first model the server reports.
func NewClient(baseURL, modelID string, policy RetryPolicy, tracker *Tracker, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		modelID: modelID,
		http:    &http.Client{},
		policy:  policy,
		tracker: tracker,
		logger:  logger,
	}
}

// ModelID returns the currently selected model.
func (c *Client) ModelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelID
}

func (c *Client) setModelID(id string) {
	c.mu.Lock()
	c.modelID = id
	c.mu.Unlock()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Invoke sends the rendered prompt and returns the generated text. Transient
// failures (connection refused, timeout) are retried per the policy with
// jittered exponential backoff; model-level failures surface immediately.
// A retry is skipped when the caller's remaining deadline cannot fit one
// more attempt. Every outcome is reported to the health tracker.
func (c *Client) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (string, error) {
	var last *InvokeError

	for attempt := 1; ; attempt++ {
		if wait := c.policy.Backoff(attempt); wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return "", newInvokeError(KindTimeout, err)
			}
		}
		if attempt > 1 && !budgetAllows(ctx, opts.Timeout) {
			// The remaining budget cannot fit another attempt; report the
			// previous failure instead of burning the siblings' time.
			return "", last
		}

		text, err := c.invokeOnce(ctx, prompt, opts)
		if err == nil {
			c.tracker.RecordSuccess(c.ModelID())
			return text, nil
		}

		var ie *InvokeError
		if !errors.As(err, &ie) {
			ie = newInvokeError(KindInvalidResponse, err)
		}
		c.tracker.RecordFailure(ie.Kind)
		last = ie

		if !c.policy.ShouldRetry(ie, attempt) {
			return "", ie
		}
		c.logger.Warn("model invocation failed, retrying",
			zap.String("kind", string(ie.Kind)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
		)
	}
}

func (c *Client) invokeOnce(ctx context.Context, prompt string, opts InvokeOptions) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.ModelID(),
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      false,
	})
	if err != nil {
		return "", newInvokeError(KindInvalidResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", newInvokeError(KindInvalidResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", newInvokeError(KindTimeout, ctx.Err())
		}
		return "", newInvokeError(KindConnectionRefused, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusServiceUnavailable:
		return "", newInvokeError(KindModelUnavailable, fmt.Errorf("model endpoint returned %d", resp.StatusCode))
	default:
		return "", newInvokeError(KindInvalidResponse, fmt.Errorf("model endpoint returned %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", newInvokeError(KindTimeout, ctx.Err())
		}
		return "", newInvokeError(KindInvalidResponse, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", newInvokeError(KindInvalidResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", newInvokeError(KindInvalidResponse, errors.New("empty completion"))
	}
	return parsed.Choices[0].Message.Content, nil
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Probe checks the endpoint's /v1/models listing and selects a model. Used
// at startup and by the orchestrator's half-open recovery probe. The tracker
// is updated with the result.
func (c *Client) Probe(ctx context.Context) (string, error) {
	c.tracker.RecordConnecting()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return "", newInvokeError(KindInvalidResponse, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		kind := KindConnectionRefused
		if ctx.Err() != nil {
			kind = KindTimeout
		}
		c.tracker.RecordFailure(kind)
		return "", newInvokeError(kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.tracker.RecordFailure(KindModelUnavailable)
		return "", newInvokeError(KindModelUnavailable, fmt.Errorf("models listing returned %d", resp.StatusCode))
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.tracker.RecordFailure(KindInvalidResponse)
		return "", newInvokeError(KindInvalidResponse, err)
	}
	if len(parsed.Data) == 0 {
		c.tracker.RecordFailure(KindModelUnavailable)
		return "", newInvokeError(KindModelUnavailable, errors.New("no models loaded"))
	}

	// Keep the configured model if the server still has it, otherwise take
	// the first one the server offers.
	selected := parsed.Data[0].ID
	for _, m := range parsed.Data {
		if m.ID == c.ModelID() {
			selected = m.ID
			break
		}
	}
	c.setModelID(selected)
	c.tracker.RecordSuccess(selected)
	return selected, nil
}

// budgetAllows reports whether the context deadline leaves room for one more
// attempt of the given timeout.
func budgetAllows(ctx context.Context, attemptTimeout time.Duration) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	if attemptTimeout <= 0 {
		return time.Until(deadline) > 0
	}
	return time.Until(deadline) >= attemptTimeout
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
