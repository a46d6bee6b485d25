package identitysdk

import (
	"context"
	"net/http"
	"net/url"
)

// CreateDirectoryConfig requires a tenant admin token.
func (c *Client) CreateDirectoryConfig(ctx context.Context, req DirectoryConfigRequest) (*DirectoryConfigResponse, error) {
	var out DirectoryConfigResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/directory-configs", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetDirectoryConfig(ctx context.Context, id string) (*DirectoryConfigResponse, error) {
	var out DirectoryConfigResponse
	if err := c.doJSON(ctx, http.MethodGet, directoryPath(id, ""), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateDirectoryConfig(ctx context.Context, id string, req DirectoryConfigRequest) (*DirectoryConfigResponse, error) {
	var out DirectoryConfigResponse
	if err := c.doJSON(ctx, http.MethodPut, directoryPath(id, ""), req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDirectoryConfig(ctx context.Context, id string) error {
	return c.doNoContent(ctx, http.MethodDelete, directoryPath(id, ""), nil)
}

// TestDirectoryConfig probes the directory. A failed probe is reported in
// the response, not as an error.
func (c *Client) TestDirectoryConfig(ctx context.Context, id string) (*ConnectionTestResponse, error) {
	var out ConnectionTestResponse
	if err := c.doJSON(ctx, http.MethodPost, directoryPath(id, "/test"), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncDirectory runs a sync now. It fails with ErrSyncInProgress when a run
// is already going for the tenant.
func (c *Client) SyncDirectory(ctx context.Context, id string) (*SyncResultResponse, error) {
	var out SyncResultResponse
	if err := c.doJSON(ctx, http.MethodPost, directoryPath(id, "/sync"), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSyncStatus(ctx context.Context, id string) (*SyncStatusResponse, error) {
	var out SyncStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, directoryPath(id, "/sync-status"), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSSOConfig requires a tenant admin token.
func (c *Client) CreateSSOConfig(ctx context.Context, req SSOConfigRequest) (*SSOConfigResponse, error) {
	var out SSOConfigResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sso-configs", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSSOConfig(ctx context.Context, id string) (*SSOConfigResponse, error) {
	var out SSOConfigResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sso-configs/"+url.PathEscape(id), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSSOConfig(ctx context.Context, id string, req SSOConfigRequest) (*SSOConfigResponse, error) {
	var out SSOConfigResponse
	if err := c.doJSON(ctx, http.MethodPut, "/v1/sso-configs/"+url.PathEscape(id), req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSSOConfig(ctx context.Context, id string) error {
	return c.doNoContent(ctx, http.MethodDelete, "/v1/sso-configs/"+url.PathEscape(id), nil)
}

func directoryPath(id, suffix string) string {
	return "/v1/directory-configs/" + url.PathEscape(id) + suffix
}
