package identitysdk

import (
	"context"
	"net/http"
	"net/url"
)

// Login authenticates with an email and password. A response with
// RequiresTwoFA set holds a partial session token for the 2FA endpoints.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/login", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetupTwoFA starts TOTP enrolment. Works with a full session or a partial
// session that is waiting on enrolment.
func (c *Client) SetupTwoFA(ctx context.Context) (*TwoFASetupResponse, error) {
	var out TwoFASetupResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/2fa/setup", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTwoFA finishes enrolment with a code from the authenticator app.
func (c *Client) ConfirmTwoFA(ctx context.Context, code string) (*TwoFAConfirmResponse, error) {
	var out TwoFAConfirmResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/2fa/confirm", TwoFACodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTwoFA trades the partial session the client carries for a full one.
func (c *Client) VerifyTwoFA(ctx context.Context, req TwoFAVerifyRequest) (*TwoFAVerifyResponse, error) {
	var out TwoFAVerifyResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/2fa/verify", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableTwoFA turns 2FA off and drops backup codes and trusted devices.
func (c *Client) DisableTwoFA(ctx context.Context, req TwoFADisableRequest) error {
	return c.doNoContent(ctx, http.MethodPost, "/v1/auth/2fa/disable", req)
}

// RegenerateBackupCodes replaces the current batch of backup codes.
func (c *Client) RegenerateBackupCodes(ctx context.Context, code string) (*BackupCodesResponse, error) {
	var out BackupCodesResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/2fa/backup-codes", TwoFACodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTrustedDevices lists the caller's unexpired trusted devices.
func (c *Client) ListTrustedDevices(ctx context.Context) ([]TrustedDeviceResponse, error) {
	var out []TrustedDeviceResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/auth/trusted-devices", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeTrustedDevice revokes one of the caller's devices.
func (c *Client) RevokeTrustedDevice(ctx context.Context, id string) error {
	return c.doNoContent(ctx, http.MethodDelete, "/v1/auth/trusted-devices/"+url.PathEscape(id), nil)
}

// RevokeAllTrustedDevices revokes every device the caller has trusted.
func (c *Client) RevokeAllTrustedDevices(ctx context.Context) (int, error) {
	var out RevokeAllResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/auth/trusted-devices", nil, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}
