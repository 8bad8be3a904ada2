package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OAuthRequest describes one authenticated HTTP request performed on behalf
// of the UI. JSONBody takes precedence over Body when both are supplied.
type OAuthRequest struct {
	ProviderID string            `json:"providerId" validate:"required"`
	Method     string            `json:"method" validate:"required"`
	URL        string            `json:"url" validate:"required,url"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	JSONBody   json.RawMessage   `json:"jsonBody,omitempty"`
	TimeoutMs  int64             `json:"timeoutMs,omitempty"`
}

type OAuthResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// ProxyRequest fetches a valid access token for the provider, performs the
// described request with a Bearer authorization header, and returns the raw
// status and body.
func (m *Manager) ProxyRequest(ctx context.Context, request OAuthRequest) (*OAuthResponse, error) {
	token, err := m.GetAccessToken(ctx, request.ProviderID)
	if err != nil {
		return nil, err
	}

	if request.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(request.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(request.JSONBody) > 0:
		body = bytes.NewReader(request.JSONBody)
		contentType = "application/json"
	case request.Body != "":
		body = strings.NewReader(request.Body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(request.Method), request.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := m.proxyClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &OAuthResponse{Status: resp.StatusCode, Body: string(payload)}, nil
}
