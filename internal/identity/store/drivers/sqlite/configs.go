package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/jmoiron/sqlx"
)

// roleMappingJSON is the stored shape of domain.RoleMapping.
type roleMappingJSON struct {
	GroupDN string `json:"group_dn"`
	Role    string `json:"role"`
}

func encodeRoleMappings(ms []domain.RoleMapping) (string, error) {
	out := make([]roleMappingJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, roleMappingJSON{GroupDN: m.GroupDN, Role: m.Role.String()})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode role mappings: %w", err)
	}
	return string(b), nil
}

func decodeRoleMappings(s string) ([]domain.RoleMapping, error) {
	if s == "" {
		return nil, nil
	}
	var raw []roleMappingJSON
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode role mappings: %w", err)
	}
	out := make([]domain.RoleMapping, 0, len(raw))
	for _, m := range raw {
		role, err := domain.ParseRole(m.Role)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.RoleMapping{GroupDN: m.GroupDN, Role: role})
	}
	return out, nil
}

const directoryConfigColumns = `id, company_id, enabled, host, port, tls_mode, insecure_skip_verify,
	bind_dn, bind_password_enc, base_dn, user_filter, email_attr, name_attr,
	group_base_dn, group_filter, group_member_attr, role_mappings, default_role,
	sync_interval_hours, last_sync_status, last_sync_at, last_sync_message, last_sync_count,
	created_at, updated_at`

type directoryConfigRow struct {
	ID                 string       `db:"id"`
	CompanyID          string       `db:"company_id"`
	Enabled            bool         `db:"enabled"`
	Host               string       `db:"host"`
	Port               int          `db:"port"`
	TLSMode            string       `db:"tls_mode"`
	InsecureSkipVerify bool         `db:"insecure_skip_verify"`
	BindDN             string       `db:"bind_dn"`
	BindPasswordEnc    string       `db:"bind_password_enc"`
	BaseDN             string       `db:"base_dn"`
	UserFilter         string       `db:"user_filter"`
	EmailAttr          string       `db:"email_attr"`
	NameAttr           string       `db:"name_attr"`
	GroupBaseDN        string       `db:"group_base_dn"`
	GroupFilter        string       `db:"group_filter"`
	GroupMemberAttr    string       `db:"group_member_attr"`
	RoleMappings       string       `db:"role_mappings"`
	DefaultRole        string       `db:"default_role"`
	SyncIntervalHours  int          `db:"sync_interval_hours"`
	LastSyncStatus     string       `db:"last_sync_status"`
	LastSyncAt         sql.NullTime `db:"last_sync_at"`
	LastSyncMessage    string       `db:"last_sync_message"`
	LastSyncCount      int          `db:"last_sync_count"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

func (r directoryConfigRow) domain() (domain.DirectoryConfig, error) {
	tlsMode, err := domain.ParseTLSMode(r.TLSMode)
	if err != nil {
		return domain.DirectoryConfig{}, err
	}
	role, err := domain.ParseRole(r.DefaultRole)
	if err != nil {
		return domain.DirectoryConfig{}, err
	}
	status, err := domain.ParseSyncStatus(r.LastSyncStatus)
	if err != nil {
		return domain.DirectoryConfig{}, err
	}
	mappings, err := decodeRoleMappings(r.RoleMappings)
	if err != nil {
		return domain.DirectoryConfig{}, err
	}
	return domain.DirectoryConfig{
		ID:                 r.ID,
		CompanyID:          r.CompanyID,
		Enabled:            r.Enabled,
		Host:               r.Host,
		Port:               r.Port,
		TLSMode:            tlsMode,
		InsecureSkipVerify: r.InsecureSkipVerify,
		BindDN:             r.BindDN,
		BindPasswordEnc:    r.BindPasswordEnc,
		BaseDN:             r.BaseDN,
		UserFilter:         r.UserFilter,
		EmailAttr:          r.EmailAttr,
		NameAttr:           r.NameAttr,
		GroupBaseDN:        r.GroupBaseDN,
		GroupFilter:        r.GroupFilter,
		GroupMemberAttr:    r.GroupMemberAttr,
		RoleMappings:       mappings,
		DefaultRole:        role,
		SyncIntervalHours:  r.SyncIntervalHours,
		LastSyncStatus:     status,
		LastSyncAt:         timePtr(r.LastSyncAt),
		LastSyncMessage:    r.LastSyncMessage,
		LastSyncCount:      r.LastSyncCount,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}, nil
}

type directoryConfigsRepo struct {
	q sqlx.ExtContext
}

func (r *directoryConfigsRepo) CreateDirectoryConfig(ctx context.Context, c domain.DirectoryConfig) error {
	mappings, err := encodeRoleMappings(c.RoleMappings)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO directory_configs (`+directoryConfigColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.Enabled, c.Host, c.Port, c.TLSMode.String(), c.InsecureSkipVerify,
		c.BindDN, c.BindPasswordEnc, c.BaseDN, c.UserFilter, c.EmailAttr, c.NameAttr,
		c.GroupBaseDN, c.GroupFilter, c.GroupMemberAttr, mappings, c.DefaultRole.String(),
		c.SyncIntervalHours, c.LastSyncStatus.String(), nullTime(c.LastSyncAt), c.LastSyncMessage, c.LastSyncCount,
		c.CreatedAt, c.UpdatedAt,
	)
	return mapWriteError(err)
}

func (r *directoryConfigsRepo) getOne(ctx context.Context, where string, arg any) (domain.DirectoryConfig, error) {
	var row directoryConfigRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+directoryConfigColumns+` FROM directory_configs WHERE `+where, arg)
	if err != nil {
		return domain.DirectoryConfig{}, mapNotFound(err)
	}
	return row.domain()
}

func (r *directoryConfigsRepo) GetDirectoryConfig(ctx context.Context, id string) (domain.DirectoryConfig, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *directoryConfigsRepo) GetDirectoryConfigByCompany(ctx context.Context, companyID string) (domain.DirectoryConfig, error) {
	return r.getOne(ctx, `company_id = ?`, companyID)
}

func (r *directoryConfigsRepo) ListEnabledDirectoryConfigs(ctx context.Context) ([]domain.DirectoryConfig, error) {
	var rows []directoryConfigRow
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT `+directoryConfigColumns+` FROM directory_configs WHERE enabled = 1 ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DirectoryConfig, 0, len(rows))
	for _, row := range rows {
		c, err := row.domain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *directoryConfigsRepo) UpdateDirectoryConfig(ctx context.Context, c domain.DirectoryConfig) error {
	mappings, err := encodeRoleMappings(c.RoleMappings)
	if err != nil {
		return err
	}
	return requireAffected(r.q.ExecContext(ctx, `
		UPDATE directory_configs SET
			enabled = ?, host = ?, port = ?, tls_mode = ?, insecure_skip_verify = ?,
			bind_dn = ?, bind_password_enc = ?, base_dn = ?, user_filter = ?, email_attr = ?, name_attr = ?,
			group_base_dn = ?, group_filter = ?, group_member_attr = ?, role_mappings = ?, default_role = ?,
			sync_interval_hours = ?, updated_at = ?
		WHERE id = ?`,
		c.Enabled, c.Host, c.Port, c.TLSMode.String(), c.InsecureSkipVerify,
		c.BindDN, c.BindPasswordEnc, c.BaseDN, c.UserFilter, c.EmailAttr, c.NameAttr,
		c.GroupBaseDN, c.GroupFilter, c.GroupMemberAttr, mappings, c.DefaultRole.String(),
		c.SyncIntervalHours, c.UpdatedAt, c.ID,
	))
}

func (r *directoryConfigsRepo) UpdateSyncStatus(ctx context.Context, id string, status domain.SyncStatus, at time.Time, message string, count int) error {
	return requireAffected(r.q.ExecContext(ctx, `
		UPDATE directory_configs SET
			last_sync_status = ?, last_sync_at = ?, last_sync_message = ?, last_sync_count = ?
		WHERE id = ?`,
		status.String(), at, message, count, id,
	))
}

func (r *directoryConfigsRepo) DeleteDirectoryConfig(ctx context.Context, id string) error {
	return requireAffected(r.q.ExecContext(ctx, `DELETE FROM directory_configs WHERE id = ?`, id))
}

const ssoConfigColumns = `id, company_id, enabled, protocol, display_name, issuer_url, client_id,
	client_secret_enc, scopes, idp_entity_id, idp_sso_url, idp_certificate, auto_provision,
	default_role, allowed_domains, created_at, updated_at`

type ssoConfigRow struct {
	ID              string    `db:"id"`
	CompanyID       string    `db:"company_id"`
	Enabled         bool      `db:"enabled"`
	Protocol        string    `db:"protocol"`
	DisplayName     string    `db:"display_name"`
	IssuerURL       string    `db:"issuer_url"`
	ClientID        string    `db:"client_id"`
	ClientSecretEnc string    `db:"client_secret_enc"`
	Scopes          string    `db:"scopes"`
	IDPEntityID     string    `db:"idp_entity_id"`
	IDPSSOURL       string    `db:"idp_sso_url"`
	IDPCertificate  string    `db:"idp_certificate"`
	AutoProvision   bool      `db:"auto_provision"`
	DefaultRole     string    `db:"default_role"`
	AllowedDomains  string    `db:"allowed_domains"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r ssoConfigRow) domain() (domain.SSOConfig, error) {
	proto, err := domain.ParseSSOProtocol(r.Protocol)
	if err != nil {
		return domain.SSOConfig{}, err
	}
	role, err := domain.ParseRole(r.DefaultRole)
	if err != nil {
		return domain.SSOConfig{}, err
	}
	return domain.SSOConfig{
		ID:              r.ID,
		CompanyID:       r.CompanyID,
		Enabled:         r.Enabled,
		Protocol:        proto,
		DisplayName:     r.DisplayName,
		IssuerURL:       r.IssuerURL,
		ClientID:        r.ClientID,
		ClientSecretEnc: r.ClientSecretEnc,
		Scopes:          splitFields(r.Scopes),
		IDPEntityID:     r.IDPEntityID,
		IDPSSOURL:       r.IDPSSOURL,
		IDPCertificate:  r.IDPCertificate,
		AutoProvision:   r.AutoProvision,
		DefaultRole:     role,
		AllowedDomains:  splitFields(r.AllowedDomains),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

type ssoConfigsRepo struct {
	q sqlx.ExtContext
}

func (r *ssoConfigsRepo) CreateSSOConfig(ctx context.Context, c domain.SSOConfig) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sso_configs (`+ssoConfigColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.Enabled, c.Protocol.String(), c.DisplayName, c.IssuerURL, c.ClientID,
		c.ClientSecretEnc, strings.Join(c.Scopes, " "), c.IDPEntityID, c.IDPSSOURL, c.IDPCertificate,
		c.AutoProvision, c.DefaultRole.String(), strings.Join(c.AllowedDomains, " "), c.CreatedAt, c.UpdatedAt,
	)
	return mapWriteError(err)
}

func (r *ssoConfigsRepo) getOne(ctx context.Context, where string, arg any) (domain.SSOConfig, error) {
	var row ssoConfigRow
	err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+ssoConfigColumns+` FROM sso_configs WHERE `+where, arg)
	if err != nil {
		return domain.SSOConfig{}, mapNotFound(err)
	}
	return row.domain()
}

func (r *ssoConfigsRepo) GetSSOConfig(ctx context.Context, id string) (domain.SSOConfig, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *ssoConfigsRepo) GetSSOConfigByCompany(ctx context.Context, companyID string) (domain.SSOConfig, error) {
	return r.getOne(ctx, `company_id = ?`, companyID)
}

func (r *ssoConfigsRepo) ListEnabledSSOConfigs(ctx context.Context) ([]domain.SSOConfig, error) {
	var rows []ssoConfigRow
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT `+ssoConfigColumns+` FROM sso_configs WHERE enabled = 1 ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SSOConfig, 0, len(rows))
	for _, row := range rows {
		c, err := row.domain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *ssoConfigsRepo) UpdateSSOConfig(ctx context.Context, c domain.SSOConfig) error {
	return requireAffected(r.q.ExecContext(ctx, `
		UPDATE sso_configs SET
			enabled = ?, protocol = ?, display_name = ?, issuer_url = ?, client_id = ?, client_secret_enc = ?,
			scopes = ?, idp_entity_id = ?, idp_sso_url = ?, idp_certificate = ?, auto_provision = ?,
			default_role = ?, allowed_domains = ?, updated_at = ?
		WHERE id = ?`,
		c.Enabled, c.Protocol.String(), c.DisplayName, c.IssuerURL, c.ClientID, c.ClientSecretEnc,
		strings.Join(c.Scopes, " "), c.IDPEntityID, c.IDPSSOURL, c.IDPCertificate, c.AutoProvision,
		c.DefaultRole.String(), strings.Join(c.AllowedDomains, " "), c.UpdatedAt, c.ID,
	))
}

func (r *ssoConfigsRepo) DeleteSSOConfig(ctx context.Context, id string) error {
	return requireAffected(r.q.ExecContext(ctx, `DELETE FROM sso_configs WHERE id = ?`, id))
}
