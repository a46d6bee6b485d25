package identitysdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Discover asks whether the email's domain signs in through SSO.
func (c *Client) Discover(ctx context.Context, email string) (*DiscoverResponse, error) {
	var out DiscoverResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sso/discover", DiscoverRequest{Email: email}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitSSO returns the identity provider URL the service redirects to,
// without following it.
func (c *Client) InitSSO(ctx context.Context, configID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/sso/"+url.PathEscape(configID)+"/init", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.noRedirect().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(resp.Body)
		if err := parseErrorResponse(resp, body); err != nil {
			return "", err
		}
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Header.Get("Location"), nil
}

// GetSAMLMetadata fetches the service provider metadata XML for a SAML config.
func (c *Client) GetSAMLMetadata(ctx context.Context, configID string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/sso/"+url.PathEscape(configID)+"/metadata", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if err := parseErrorResponse(resp, body); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
