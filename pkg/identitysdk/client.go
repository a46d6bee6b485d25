package identitysdk

import (
	"net/http"
	"strings"
	"time"
)

// Client talks to the identity service. The zero Token makes anonymous
// calls; WithToken derives a client that sends a bearer token.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Token is sent as "Authorization: Bearer <Token>" when set. A partial
	// session token only works on the 2FA endpoints.
	Token string
}

// NewClient creates a new identity service client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithToken returns a copy of the client that authenticates with token.
// The underlying http.Client is shared.
func (c *Client) WithToken(token string) *Client {
	out := *c
	out.Token = token
	return &out
}

// noRedirect is the HTTP client used for endpoints that answer with a 302
// the caller wants to inspect rather than follow.
func (c *Client) noRedirect() *http.Client {
	hc := *c.HTTPClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &hc
}
