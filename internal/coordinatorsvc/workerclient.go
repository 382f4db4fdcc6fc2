package coordinatorsvc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/likealocal/tips-pipeline/internal/workerapi"
)

// WorkerClient dispatches batches to the Processing Worker over HTTP,
// retrying transient failures with exponential backoff and jitter (§4.4
// step 4) behind a circuit breaker so a worker stuck returning 5xx stops
// receiving new batches until it recovers.
type WorkerClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	retry   retryConfig
}

type retryConfig struct {
	maxAttempts int
	baseDelay   time.Duration
	factor      float64
	jitterFrac  float64
}

// NewWorkerClient builds a WorkerClient against baseURL with the given
// per-request timeout and maximum attempts per batch.
func NewWorkerClient(baseURL string, requestTimeout time.Duration, maxAttemptsPerBatch int) *WorkerClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(requestTimeout)

	breakerSettings := gobreaker.Settings{
		Name:        "processing-worker",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &WorkerClient{
		http:    client,
		breaker: gobreaker.NewCircuitBreaker(breakerSettings),
		retry: retryConfig{
			maxAttempts: maxAttemptsPerBatch,
			baseDelay:   1 * time.Second,
			factor:      2,
			jitterFrac:  0.2,
		},
	}
}

// ProcessBatch posts items to /process-batch, retrying transport errors and
// 5xx responses up to maxAttemptsPerBatch with exponential backoff ±20%
// jitter (base 1s, factor 2). Returns the per-item results in request
// order, or a *BatchTransportError if every attempt failed.
func (c *WorkerClient) ProcessBatch(ctx context.Context, batchIndex int, items []workerapi.BatchItem) ([]workerapi.BatchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.maxAttempts; attempt++ {
		results, retryable, err := c.attemptOnce(ctx, items)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !retryable {
			return nil, &BatchTransportError{BatchIndex: batchIndex, Attempts: attempt, Cause: err}
		}
		if attempt < c.retry.maxAttempts {
			delay := c.backoffDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, &BatchTransportError{BatchIndex: batchIndex, Attempts: attempt, Cause: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}
	return nil, &BatchTransportError{BatchIndex: batchIndex, Attempts: c.retry.maxAttempts, Cause: lastErr}
}

// attemptOnce performs one HTTP round trip through the circuit breaker.
// retryable is true for transport errors and 5xx responses; false for 4xx,
// which indicates a malformed request the Coordinator built and retrying
// would not help.
func (c *WorkerClient) attemptOnce(ctx context.Context, items []workerapi.BatchItem) (results []workerapi.BatchResult, retryable bool, err error) {
	raw, breakerErr := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(workerapi.ProcessBatchRequest{Items: items}).
			SetResult(&workerapi.ProcessBatchResponse{}).
			Post("/process-batch")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 500 {
			return nil, fmt.Errorf("worker returned %d: %s", resp.StatusCode(), resp.String())
		}
		if resp.StatusCode() >= 400 {
			return nil, &clientError{status: resp.StatusCode(), body: resp.String()}
		}
		return resp.Result(), nil
	})

	if breakerErr != nil {
		var ce *clientError
		if errors.As(breakerErr, &ce) {
			return nil, false, breakerErr
		}
		return nil, true, breakerErr
	}

	parsed, ok := raw.(*workerapi.ProcessBatchResponse)
	if !ok {
		return nil, true, fmt.Errorf("unexpected worker response type %T", raw)
	}
	return parsed.Results, false, nil
}

// backoffDelay computes attempt N's delay: baseDelay * factor^(attempt-1),
// jittered by ±jitterFrac.
func (c *WorkerClient) backoffDelay(attempt int) time.Duration {
	base := float64(c.retry.baseDelay) * pow(c.retry.factor, attempt-1)
	jitter := base * c.retry.jitterFrac * (2*rand.Float64() - 1)
	return time.Duration(base + jitter)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// clientError marks a 4xx worker response as non-retryable.
type clientError struct {
	status int
	body   string
}

func (e *clientError) Error() string {
	return fmt.Sprintf("worker rejected request with %d: %s", e.status, e.body)
}

// Ping checks worker reachability by posting to /health; an unreachable
// worker reports false with a nil error. It does not satisfy wake.Prober,
// whose method is Probe.
func (c *WorkerClient) Ping(ctx context.Context) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).Post("/health")
	if err != nil {
		return false, nil
	}
	return resp.StatusCode() == http.StatusOK, nil
}
