package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/careerpath-dev/careerpath/internal/cli/identity"
)

type userDetail struct {
	UID       string   `json:"uid"`
	Email     string   `json:"email"`
	Providers []string `json:"providers"`
}

type sessionResponse struct {
	IDToken      string     `json:"id_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	User         userDetail `json:"user"`
}

// APIError is a non-2xx answer from careerpath-auth. It unwraps to the
// identity backend error its status maps to.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth request failed (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth request failed (status %d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// kindForStatus maps an HTTP status onto the identity backend errors
func kindForStatus(status int) error {
	switch {
	case status == http.StatusConflict:
		return identity.ErrEmailInUse
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusNotFound:
		return identity.ErrRejected
	case status >= http.StatusInternalServerError:
		return identity.ErrUnreachable
	default:
		return nil
	}
}

// post sends body as JSON and decodes a 2xx answer into out
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", identity.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", identity.ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, kind: kindForStatus(resp.StatusCode)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			apiErr.Message, apiErr.Code = payload.Error, payload.Code
		} else {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
