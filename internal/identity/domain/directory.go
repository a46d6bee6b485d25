package domain

import (
	"fmt"
	"time"
)

// RoleMapping grants Role to members of GroupDN.
type RoleMapping struct {
	GroupDN string `json:"group_dn"`
	Role    Role   `json:"-"`
}

type DirectoryConfig struct {
	ID        string
	CompanyID string
	Enabled   bool

	Host               string
	Port               int
	TLSMode            TLSMode
	InsecureSkipVerify bool

	BindDN          string
	BindPasswordEnc string // vault-sealed

	BaseDN     string
	UserFilter string
	EmailAttr  string
	NameAttr   string

	GroupBaseDN     string
	GroupFilter     string
	GroupMemberAttr string

	RoleMappings []RoleMapping
	DefaultRole  Role

	SyncIntervalHours int

	LastSyncStatus  SyncStatus
	LastSyncAt      *time.Time
	LastSyncMessage string
	LastSyncCount   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Defaults for the attribute fields left blank by administrators.
const (
	DefaultUserFilter      = "(objectClass=person)"
	DefaultEmailAttr       = "mail"
	DefaultNameAttr        = "cn"
	DefaultGroupFilter     = "(objectClass=groupOfNames)"
	DefaultGroupMemberAttr = "member"
)

// URL returns the ldap:// or ldaps:// URL for the config.
func (c DirectoryConfig) URL() string {
	scheme := "ldap"
	port := c.Port
	if c.TLSMode == TLSLDAPS {
		scheme = "ldaps"
		if port == 0 {
			port = 636
		}
	}
	if port == 0 {
		port = 389
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, port)
}

// Complete reports whether the config has enough to bind and search.
func (c DirectoryConfig) Complete() bool {
	return c.Host != "" && c.BindDN != "" && c.BindPasswordEnc != "" && c.BaseDN != ""
}

// GroupMappingEnabled is true when group lookups are needed to resolve roles.
func (c DirectoryConfig) GroupMappingEnabled() bool {
	return len(c.RoleMappings) > 0 && c.GroupBaseDN != ""
}

// WithDefaults fills blank search attributes.
func (c DirectoryConfig) WithDefaults() DirectoryConfig {
	if c.UserFilter == "" {
		c.UserFilter = DefaultUserFilter
	}
	if c.EmailAttr == "" {
		c.EmailAttr = DefaultEmailAttr
	}
	if c.NameAttr == "" {
		c.NameAttr = DefaultNameAttr
	}
	if c.GroupFilter == "" {
		c.GroupFilter = DefaultGroupFilter
	}
	if c.GroupMemberAttr == "" {
		c.GroupMemberAttr = DefaultGroupMemberAttr
	}
	if c.DefaultRole == RoleUnknown {
		c.DefaultRole = RoleUser
	}
	return c
}

// SyncResult is the outcome of one directory reconciliation run.
type SyncResult struct {
	Created             int      `json:"created"`
	Updated             int      `json:"updated"`
	Disabled            int      `json:"disabled"`
	Reactivated         int      `json:"reactivated"`
	Errors              []string `json:"errors"`
	TotalDirectoryUsers int      `json:"total_directory_users"`
}

// Status classifies a finished run.
func (r SyncResult) Status() SyncStatus {
	if len(r.Errors) > 0 {
		return SyncPartial
	}
	return SyncSuccess
}

// Summary is the human readable line persisted with the status.
func (r SyncResult) Summary() string {
	return fmt.Sprintf("%d created, %d updated, %d disabled, %d reactivated, %d errors (of %d directory users)",
		r.Created, r.Updated, r.Disabled, r.Reactivated, len(r.Errors), r.TotalDirectoryUsers)
}
