// Package relay forwards Steam check_authentication requests. The API can
// call Steam directly through a Forwarder, or, when it runs somewhere Steam
// is not reachable from, through a relay process (cmd/relay) using Client.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	validMarker  = "is_valid:true"
	maxBodyBytes = 64 << 10
	formType     = "application/x-www-form-urlencoded"
)

// Forwarder POSTs form bodies verbatim to the OpenID provider.
type Forwarder struct {
	endpoint   string
	httpClient *http.Client
}

func NewForwarder(endpoint string, httpClient *http.Client) *Forwarder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Forwarder{endpoint: endpoint, httpClient: httpClient}
}

// Forward sends body to the provider and reports 204 when the provider
// answered is_valid:true, 403 for any other answer.
func (f *Forwarder) Forward(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Accept", "*/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("relay: forward to provider: %w", err)
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, fmt.Errorf("relay: read provider response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && bytes.Contains(answer, []byte(validMarker)) {
		return http.StatusNoContent, nil
	}
	return http.StatusForbidden, nil
}

// CheckAuthentication lets a Forwarder serve as the login checker without a
// relay hop.
func (f *Forwarder) CheckAuthentication(ctx context.Context, form url.Values) (int, error) {
	return f.Forward(ctx, []byte(form.Encode()))
}

// Client calls a relay process on behalf of the login flow.
type Client struct {
	url         string
	accessToken string
	httpClient  *http.Client
}

func NewClient(relayURL, accessToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: relayURL, accessToken: accessToken, httpClient: httpClient}
}

// CheckAuthentication returns the relay's status code uninterpreted.
func (c *Client) CheckAuthentication(ctx context.Context, form url.Values) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("relay: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	return resp.StatusCode, nil
}
