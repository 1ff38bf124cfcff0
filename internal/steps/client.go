// Package steps implements the pipeline steps of a content submission and the HTTP
// collaborators (transcoder, IPFS pinning service, Origin minting API, search indexer) they call.
package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

const (
	defaultServiceTimeout = 60 * time.Second
	maxResponseBytes      = 64 << 10
)

// ServiceConfig locates one external collaborator. An empty BaseURL means not configured.
type ServiceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ServiceError is a non-2xx response from a collaborator
type ServiceError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s request failed: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable returns true for server errors, rate limiting and request timeouts.
// Other client errors are permanent.
func (e *ServiceError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

type serviceClient struct {
	service    string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func newServiceClient(service string, cfg ServiceConfig, logger *slog.Logger) *serviceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultServiceTimeout
	}

	return &serviceClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("service", service)),
	}
}

func (c *serviceClient) configured() bool {
	return c.baseURL != ""
}

// postJSON sends in to path and decodes the response into out. Failures come back as
// domain.TransientError or domain.PermanentError; a cancelled ctx is returned as is.
func (c *serviceClient) postJSON(ctx context.Context, path, idempotencyKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return domain.NewPermanentError(fmt.Errorf("marshal %s payload: %w", c.service, err))
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.NewPermanentError(fmt.Errorf("create %s request: %w", c.service, err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("Calling collaborator", slog.String("url", url), slog.Int("body_bytes", len(body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.NewTransientError(fmt.Errorf("%s request failed: %w", c.service, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.NewTransientError(fmt.Errorf("read %s response: %w", c.service, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &ServiceError{Service: c.service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		if serr.Retryable() {
			return domain.NewTransientError(serr)
		}
		return domain.NewPermanentError(serr)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domain.NewPermanentError(fmt.Errorf("decode %s response: %w", c.service, err))
	}

	return nil
}

// idempotencyKey lets a collaborator recognise a retried or re-delivered call for the same job step
func idempotencyKey(job *domain.Job, step string) string {
	return job.ID + ":" + step
}

// AsServiceError extracts the collaborator response from a step error
func AsServiceError(err error) (*ServiceError, bool) {
	var serr *ServiceError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}
