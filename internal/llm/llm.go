package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Provider is the interface for text generation backends.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

var (
	// ErrNotConfigured is returned when a provider is missing its credential.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrModelLoading means the backend is warming up; the call may be retried.
	ErrModelLoading = errors.New("model is loading")

	// ErrAuth means the request was rejected for credentials or validation.
	// Retrying will not help.
	ErrAuth = errors.New("request rejected")

	// ErrBadResponse means the backend answered 2xx with an unusable body.
	ErrBadResponse = errors.New("unusable response")

	// ErrTransport wraps network failures before any response was received.
	ErrTransport = errors.New("transport failure")
)

// StatusError is an unexpected non-2xx status that is neither a loading
// nor a rejection status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.Code, e.Body)
}

// Retryable reports whether err is worth another attempt on the same provider.
func Retryable(err error) bool {
	return errors.Is(err, ErrModelLoading) || errors.Is(err, ErrTransport)
}

const maxErrorBody = 512

// checkStatus converts a non-2xx response into a classified error.
func checkStatus(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	body := strings.TrimSpace(string(data))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable,
		strings.Contains(strings.ToLower(body), "is currently loading"):
		return fmt.Errorf("%s returned %d: %w", provider, resp.StatusCode, ErrModelLoading)
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s returned %d: %s: %w", provider, resp.StatusCode, body, ErrAuth)
	}
	return &StatusError{Provider: provider, Code: resp.StatusCode, Body: body}
}

// postJSON sends body as JSON and decodes a successful response into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s request: %w", provider, ctx.Err())
		}
		return fmt.Errorf("%s request: %w: %w", provider, ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(provider, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w: %w", provider, ErrBadResponse, err)
	}
	return nil
}

func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return http.DefaultClient
}
