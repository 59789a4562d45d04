package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulseiq/pulse-engine/pkg/logging"
)

// DefaultTimeout bounds individual upstream HTTP calls when the caller
// supplies no client of its own.
const DefaultTimeout = 10 * time.Second

// TokenResponse is the common OAuth token endpoint response shape.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

// ExpiresAt converts ExpiresIn into an absolute expiry relative to now, or
// nil for non-expiring tokens.
func (r *TokenResponse) ExpiresAt(now time.Time) *time.Time {
	if r.ExpiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(r.ExpiresIn) * time.Second)
	return &t
}

// ScopeList splits the space- or comma-delimited scope string.
func (r *TokenResponse) ScopeList() []string {
	if r.Scope == "" {
		return nil
	}
	return strings.FieldsFunc(r.Scope, func(c rune) bool { return c == ' ' || c == ',' })
}

// PostTokenForm posts a form-encoded request to an OAuth token endpoint and
// decodes the standard token response. Non-2xx responses become a typed
// *Error for the given stage with the sanitized upstream body preserved for
// operator diagnosis.
func PostTokenForm(ctx context.Context, client *http.Client, providerID string, stage Stage, tokenURL string, form url.Values, headers map[string]string) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, NewError(stage, providerID, 0, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient(client).Do(req)
	if err != nil {
		return nil, NewError(stage, providerID, 0, "token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, NewError(stage, providerID, resp.StatusCode, logging.SanitizeUpstreamBody(string(body)), nil)
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, NewError(stage, providerID, 0, "failed to decode token response", err)
	}
	if tok.AccessToken == "" {
		return nil, NewError(stage, providerID, 0, "token response missing access_token", nil)
	}

	return &tok, nil
}

// GetJSON issues an authenticated read-only GET and decodes the response into
// out. Non-2xx responses become a *Error with StagePull.
func GetJSON(ctx context.Context, client *http.Client, providerID, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return NewError(StagePull, providerID, 0, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient(client).Do(req)
	if err != nil {
		return NewError(StagePull, providerID, 0, "upstream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return NewError(StagePull, providerID, resp.StatusCode,
			fmt.Sprintf("GET %s: %s", req.URL.Path, logging.SanitizeUpstreamBody(string(body))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(StagePull, providerID, 0, "failed to decode upstream response", err)
	}
	return nil
}

// PostJSON issues an authenticated POST with a JSON body and decodes the
// response into out. Non-2xx responses become a *Error with StagePull.
func PostJSON(ctx context.Context, client *http.Client, providerID, rawURL string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return NewError(StagePull, providerID, 0, "failed to encode request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(string(payload)))
	if err != nil {
		return NewError(StagePull, providerID, 0, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient(client).Do(req)
	if err != nil {
		return NewError(StagePull, providerID, 0, "upstream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return NewError(StagePull, providerID, resp.StatusCode,
			fmt.Sprintf("POST %s: %s", req.URL.Path, logging.SanitizeUpstreamBody(string(respBody))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(StagePull, providerID, 0, "failed to decode upstream response", err)
	}
	return nil
}

// PostForm issues a fire-and-forget style POST (token revocation). The caller
// decides whether the error matters.
func PostForm(ctx context.Context, client *http.Client, providerID, rawURL string, form url.Values, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return NewError(StageRevoke, providerID, 0, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient(client).Do(req)
	if err != nil {
		return NewError(StageRevoke, providerID, 0, "revocation request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return NewError(StageRevoke, providerID, resp.StatusCode, logging.SanitizeUpstreamBody(string(body)), nil)
	}
	return nil
}

func httpClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: DefaultTimeout}
}
