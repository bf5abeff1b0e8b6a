package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/archops/governor/internal/backoff"
	"github.com/archops/governor/internal/tracing"
)

// DifyClient wraps the Dify completion API. Transient 5xx responses are
// retried with the same jittered backoff policy the service uses
// elsewhere; 4xx responses surface immediately.
type DifyClient struct {
	baseURL     string
	apiKey      string
	maxAttempts int
	httpClient  *http.Client
	rng         *rand.Rand
	sleep       func(time.Duration)
}

func NewDifyClient(baseURL, apiKey string, timeoutSeconds int) *DifyClient {
	if baseURL == "" {
		baseURL = "https://api.dify.ai/v1"
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &DifyClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		maxAttempts: 3,
		httpClient:  &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       time.Sleep,
	}
}

// Health probes the API with the configured credentials.
func (c *DifyClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/workspaces", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dify health: status %d", resp.StatusCode)
	}
	return nil
}

type difyCompletionRequest struct {
	Inputs       map[string]any `json:"inputs"`
	Query        string         `json:"query"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

// Generate sends prompt to the completion-messages endpoint and returns
// the answer text.
func (c *DifyClient) Generate(ctx context.Context, prompt string) (string, error) {
	payload := difyCompletionRequest{
		Inputs:       map[string]any{},
		Query:        prompt,
		ResponseMode: "blocking",
		User:         "governor",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff.Compute("exp_full_jitter", 1, 10, attempt, c.rng)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
			}
			c.sleep(time.Duration(delay) * time.Second)
		}

		answer, retryable, err := c.completionOnce(ctx, raw)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("dify completion failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *DifyClient) completionOnce(ctx context.Context, raw []byte) (answer string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion-messages", bytes.NewReader(raw))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", true, fmt.Errorf("dify completion: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", false, fmt.Errorf("dify completion: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, err
	}
	return strings.TrimSpace(body.Answer), false, nil
}
