package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/llmrouter/router/internal/core/domain"
)

// HTTPClient is the narrow surface adapters need from *http.Client, so
// tests can inject a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPError carries the upstream status code and raw body for a
// non-2xx response, so a caller can classify it into the router's
// error taxonomy without re-parsing headers.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, string(e.Body))
}

// SendRequest creates a request, sends it, and decodes a JSON response.
// Non-2xx responses are returned as *HTTPError.
func SendRequest(ctx context.Context, client HTTPClient, method, url string, headers map[string]string, body interface{}, response interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Body: respBody}
	}

	if response != nil {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// ClassifyStatus maps an upstream HTTP status code to the router's
// error taxonomy.
func ClassifyStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.KindAuthError
	case status == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case status == http.StatusRequestTimeout:
		return domain.KindTimeout
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusNotFound:
		return domain.KindBadRequest
	case status >= 500:
		return domain.KindServerError
	default:
		return domain.KindTransient
	}
}

// ToRouterError translates a wire-level error (network error, context
// cancellation, or *HTTPError) into the router's taxonomy. Adapters call
// this at every call site instead of propagating raw errors, per
// spec.md §4.7's "adapters must translate backend-specific errors".
func ToRouterError(provider string, err error) *domain.RouterError {
	if err == nil {
		return nil
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		kind := ClassifyStatus(httpErr.StatusCode)
		return newKindError(kind, provider, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTimeout(provider, err)
	}

	return domain.NewTransient(provider, err)
}

func newKindError(kind domain.ErrorKind, provider string, err error) *domain.RouterError {
	switch kind {
	case domain.KindAuthError:
		return domain.NewAuthError(provider, err)
	case domain.KindRateLimited:
		return domain.NewRateLimited(provider, err)
	case domain.KindTimeout:
		return domain.NewTimeout(provider, err)
	case domain.KindBadRequest:
		return domain.NewBadRequest(provider, err)
	case domain.KindServerError:
		return domain.NewServerError(provider, err)
	default:
		return domain.NewTransient(provider, err)
	}
}
