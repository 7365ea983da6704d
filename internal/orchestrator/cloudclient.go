package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"inferouter/internal/backpressure"
	"inferouter/internal/domain"
	"inferouter/internal/errors"
	"inferouter/internal/wire"
)

// HTTPCloudClient implements both VerifierClient and CloudDirectClient
// against a running cloudd process, matching the teacher's baseURL+http.Client
// convention (internal/cloud.Client). Each call kind gets its own
// backpressure.CallGuard: /verify sits on the critical path of every
// speculative request and retries cheaply
// (backpressure.VerifyRetryOptions), while /inference/direct has already
// abandoned the draft and can afford one extra attempt
// (backpressure.DirectRetryOptions). Each guard takes
// communication.max_concurrent_calls as its own concurrency cap.
type HTTPCloudClient struct {
	baseURL     string
	httpClient  *http.Client
	verifyGuard *backpressure.CallGuard
	directGuard *backpressure.CallGuard
}

// NewHTTPCloudClient builds a client targeting baseURL (e.g. "http://cloud:9090").
// maxConcurrent bounds simultaneous outbound calls per call kind; <= 0 means
// unlimited. breakerOpts configures the per-target circuit breakers of both
// call kinds' guards; each guard keeps its own breakers.
func NewHTTPCloudClient(baseURL string, breakerOpts backpressure.CircuitBreakerOptions, maxConcurrent int) *HTTPCloudClient {
	return &HTTPCloudClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{},
		verifyGuard: backpressure.NewCallGuard(maxConcurrent, breakerOpts, backpressure.VerifyRetryOptions()),
		directGuard: backpressure.NewCallGuard(maxConcurrent, breakerOpts, backpressure.DirectRetryOptions()),
	}
}

// Verify implements VerifierClient by POSTing to the cloud's /verify endpoint.
func (c *HTTPCloudClient) Verify(ctx context.Context, requestID, prompt, draft string, threshold float64, timeout time.Duration) (VerifyResult, error) {
	if c.baseURL == "" {
		return VerifyResult{}, errors.Classify(errors.NewCloudUnavailableError(""))
	}

	reqBody := wire.VerifyRequest{
		RequestID: requestID,
		Prompt:    prompt,
		Draft:     draft,
		Threshold: threshold,
	}

	var out wire.VerifyResponse
	err := c.verifyGuard.Do(ctx, c.baseURL+"/verify", func(ctx context.Context) error {
		return c.post(ctx, "/verify", reqBody, &out, timeout)
	})
	if err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{
		FinalText:      out.FinalText,
		AcceptanceRate: out.AcceptanceRate,
		LatencyMs:      out.LatencyMs,
	}, nil
}

// GenerateDirect implements CloudDirectClient by POSTing to the cloud's
// /inference/direct endpoint.
func (c *HTTPCloudClient) GenerateDirect(ctx context.Context, req domain.InferenceRequest, timeout time.Duration) (DirectResult, error) {
	if c.baseURL == "" {
		return DirectResult{}, errors.Classify(errors.NewCloudUnavailableError(""))
	}

	reqBody := wire.DirectRequest{
		RequestID:   req.RequestID,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
	}

	var out wire.DirectResponse
	err := c.directGuard.Do(ctx, c.baseURL+"/inference/direct", func(ctx context.Context) error {
		return c.post(ctx, "/inference/direct", reqBody, &out, timeout)
	})
	if err != nil {
		return DirectResult{}, err
	}

	return DirectResult{
		Text:            out.Text,
		TokensGenerated: out.TokensGenerated,
		LatencyMs:       out.LatencyMs,
	}, nil
}

// Stats reports circuit breaker state for both call kinds, keyed by target URL.
func (c *HTTPCloudClient) Stats() map[string]backpressure.CircuitStats {
	stats := c.verifyGuard.Stats()
	for k, v := range c.directGuard.Stats() {
		stats[k] = v
	}
	return stats
}

func (c *HTTPCloudClient) post(ctx context.Context, path string, body, result any, timeout time.Duration) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloud request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cloud error %d: %s", resp.StatusCode, string(msg))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode cloud response: %w", err)
		}
	}
	return nil
}
