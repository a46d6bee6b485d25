package http

import (
	"fmt"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/service"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
)

func userResponse(u domain.User) *identitysdk.UserResponse {
	return &identitysdk.UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         u.Role.String(),
		CompanyID:    u.CompanyID,
		ParkID:       domain.Deref(u.ParkID),
		AuthSource:   u.AuthSource.String(),
		TwoFAEnabled: u.TwoFAEnabled,
	}
}

// loginResponse hides the user behind a partial session.
func loginResponse(res service.LoginResult) identitysdk.LoginResponse {
	out := identitysdk.LoginResponse{
		Token:              res.Token,
		ExpiresAt:          res.ExpiresAt,
		RequiresTwoFA:      res.RequiresTwoFA,
		TwoFASetupRequired: res.TwoFASetupRequired,
	}
	if res.State == service.StateFullSession {
		out.User = userResponse(res.User)
	}
	return out
}

func trustedDeviceResponse(d domain.TrustedDevice) identitysdk.TrustedDeviceResponse {
	return identitysdk.TrustedDeviceResponse{
		ID:         d.ID,
		UserAgent:  d.UserAgent,
		IP:         d.IP,
		ExpiresAt:  d.ExpiresAt,
		CreatedAt:  d.CreatedAt,
		LastUsedAt: d.LastUsedAt,
	}
}

func syncResultResponse(r domain.SyncResult) identitysdk.SyncResultResponse {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return identitysdk.SyncResultResponse{
		Created:             r.Created,
		Updated:             r.Updated,
		Disabled:            r.Disabled,
		Reactivated:         r.Reactivated,
		Errors:              errs,
		TotalDirectoryUsers: r.TotalDirectoryUsers,
	}
}

func syncStatusResponse(s service.SyncStatus) identitysdk.SyncStatusResponse {
	return identitysdk.SyncStatusResponse{
		Status:  s.Status.String(),
		At:      s.At,
		Message: s.Message,
		Count:   s.Count,
	}
}

func directoryConfigResponse(c domain.DirectoryConfig) identitysdk.DirectoryConfigResponse {
	mappings := make([]identitysdk.RoleMapping, 0, len(c.RoleMappings))
	for _, m := range c.RoleMappings {
		mappings = append(mappings, identitysdk.RoleMapping{GroupDN: m.GroupDN, Role: m.Role.String()})
	}
	return identitysdk.DirectoryConfigResponse{
		ID:                 c.ID,
		CompanyID:          c.CompanyID,
		Enabled:            c.Enabled,
		Host:               c.Host,
		Port:               c.Port,
		TLSMode:            c.TLSMode.String(),
		InsecureSkipVerify: c.InsecureSkipVerify,
		BindDN:             c.BindDN,
		HasBindPassword:    c.BindPasswordEnc != "",
		BaseDN:             c.BaseDN,
		UserFilter:         c.UserFilter,
		EmailAttr:          c.EmailAttr,
		NameAttr:           c.NameAttr,
		GroupBaseDN:        c.GroupBaseDN,
		GroupFilter:        c.GroupFilter,
		GroupMemberAttr:    c.GroupMemberAttr,
		RoleMappings:       mappings,
		DefaultRole:        c.DefaultRole.String(),
		SyncIntervalHours:  c.SyncIntervalHours,
		LastSync: identitysdk.SyncStatusResponse{
			Status:  c.LastSyncStatus.String(),
			At:      c.LastSyncAt,
			Message: c.LastSyncMessage,
			Count:   c.LastSyncCount,
		},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// directoryInput parses the enum fields. Parse failures are reported as
// invalid config so they surface like any other validation error.
func directoryInput(req identitysdk.DirectoryConfigRequest) (service.DirectoryConfigInput, error) {
	tls, err := domain.ParseTLSMode(req.TLSMode)
	if err != nil {
		return service.DirectoryConfigInput{}, fmt.Errorf("%w: %v", service.ErrInvalidConfig, err)
	}
	defaultRole, err := optionalRole(req.DefaultRole)
	if err != nil {
		return service.DirectoryConfigInput{}, err
	}

	mappings := make([]domain.RoleMapping, 0, len(req.RoleMappings))
	for i, m := range req.RoleMappings {
		role, err := domain.ParseRole(m.Role)
		if err != nil {
			return service.DirectoryConfigInput{}, fmt.Errorf("%w: role mapping %d: %v", service.ErrInvalidConfig, i, err)
		}
		mappings = append(mappings, domain.RoleMapping{GroupDN: m.GroupDN, Role: role})
	}

	return service.DirectoryConfigInput{
		CompanyID:          req.CompanyID,
		Enabled:            req.Enabled,
		Host:               req.Host,
		Port:               req.Port,
		TLSMode:            tls,
		InsecureSkipVerify: req.InsecureSkipVerify,
		BindDN:             req.BindDN,
		BindPassword:       req.BindPassword,
		BaseDN:             req.BaseDN,
		UserFilter:         req.UserFilter,
		EmailAttr:          req.EmailAttr,
		NameAttr:           req.NameAttr,
		GroupBaseDN:        req.GroupBaseDN,
		GroupFilter:        req.GroupFilter,
		GroupMemberAttr:    req.GroupMemberAttr,
		RoleMappings:       mappings,
		DefaultRole:        defaultRole,
		SyncIntervalHours:  req.SyncIntervalHours,
	}, nil
}

func ssoConfigResponse(c domain.SSOConfig) identitysdk.SSOConfigResponse {
	domains := c.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	return identitysdk.SSOConfigResponse{
		ID:              c.ID,
		CompanyID:       c.CompanyID,
		Enabled:         c.Enabled,
		Protocol:        c.Protocol.String(),
		DisplayName:     c.DisplayName,
		IssuerURL:       c.IssuerURL,
		ClientID:        c.ClientID,
		HasClientSecret: c.ClientSecretEnc != "",
		Scopes:          c.Scopes,
		IDPEntityID:     c.IDPEntityID,
		IDPSSOURL:       c.IDPSSOURL,
		IDPCertificate:  c.IDPCertificate,
		AutoProvision:   c.AutoProvision,
		DefaultRole:     c.DefaultRole.String(),
		AllowedDomains:  domains,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func ssoInput(req identitysdk.SSOConfigRequest) (service.SSOConfigInput, error) {
	proto, err := domain.ParseSSOProtocol(req.Protocol)
	if err != nil {
		return service.SSOConfigInput{}, fmt.Errorf("%w: %v", service.ErrInvalidConfig, err)
	}
	defaultRole, err := optionalRole(req.DefaultRole)
	if err != nil {
		return service.SSOConfigInput{}, err
	}
	return service.SSOConfigInput{
		CompanyID:      req.CompanyID,
		Enabled:        req.Enabled,
		Protocol:       proto,
		DisplayName:    req.DisplayName,
		IssuerURL:      req.IssuerURL,
		ClientID:       req.ClientID,
		ClientSecret:   req.ClientSecret,
		Scopes:         req.Scopes,
		IDPEntityID:    req.IDPEntityID,
		IDPSSOURL:      req.IDPSSOURL,
		IDPCertificate: req.IDPCertificate,
		AutoProvision:  req.AutoProvision,
		DefaultRole:    defaultRole,
		AllowedDomains: req.AllowedDomains,
	}, nil
}

// optionalRole leaves a blank role unset so the service default applies.
func optionalRole(s string) (domain.Role, error) {
	if s == "" {
		return domain.RoleUnknown, nil
	}
	r, err := domain.ParseRole(s)
	if err != nil {
		return domain.RoleUnknown, fmt.Errorf("%w: default role: %v", service.ErrInvalidConfig, err)
	}
	return r, nil
}
