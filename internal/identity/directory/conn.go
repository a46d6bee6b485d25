// Package directory talks to tenant LDAP directories. It owns the two-phase
// password check and the user/group searches the sync engine consumes.
package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/go-ldap/ldap/v3"
)

// DefaultTimeout bounds dialing and every request on a connection.
const DefaultTimeout = 10 * time.Second

// Params is everything needed to reach and search one directory. The bind
// password is plaintext and must never be logged.
type Params struct {
	URL                string
	StartTLS           bool
	InsecureSkipVerify bool
	Timeout            time.Duration

	BindDN       string
	BindPassword string

	BaseDN     string
	UserFilter string
	EmailAttr  string
	NameAttr   string

	GroupBaseDN     string
	GroupFilter     string
	GroupMemberAttr string
}

// ParamsFor builds connection parameters from a stored config and its
// decrypted bind password.
func ParamsFor(cfg domain.DirectoryConfig, bindPassword string, timeout time.Duration) Params {
	cfg = cfg.WithDefaults()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Params{
		URL:                cfg.URL(),
		StartTLS:           cfg.TLSMode == domain.TLSStartTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Timeout:            timeout,
		BindDN:             cfg.BindDN,
		BindPassword:       bindPassword,
		BaseDN:             cfg.BaseDN,
		UserFilter:         cfg.UserFilter,
		EmailAttr:          cfg.EmailAttr,
		NameAttr:           cfg.NameAttr,
		GroupBaseDN:        cfg.GroupBaseDN,
		GroupFilter:        cfg.GroupFilter,
		GroupMemberAttr:    cfg.GroupMemberAttr,
	}
}

// Conn is the subset of *ldap.Conn the client uses.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Close()
}

// Dialer opens directory connections.
type Dialer interface {
	Dial(ctx context.Context, p Params) (Conn, error)
}

// LDAPDialer dials real servers with go-ldap.
type LDAPDialer struct{}

func (LDAPDialer) Dial(ctx context.Context, p Params) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tlsCfg := &tls.Config{
		InsecureSkipVerify: p.InsecureSkipVerify, //nolint:gosec // per-tenant opt-in
		MinVersion:         tls.VersionTLS12,
	}
	if u, err := url.Parse(p.URL); err == nil {
		tlsCfg.ServerName = u.Hostname()
	}

	conn, err := ldap.DialURL(p.URL,
		ldap.DialWithDialer(&net.Dialer{Timeout: timeout}),
		ldap.DialWithTLSConfig(tlsCfg),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", p.URL, err)
	}
	conn.SetTimeout(timeout)

	if p.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to start tls: %w", err)
		}
	}
	return &ldapConn{c: conn}, nil
}

type ldapConn struct {
	c *ldap.Conn
}

func (l *ldapConn) Bind(username, password string) error { return l.c.Bind(username, password) }

func (l *ldapConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return l.c.Search(req)
}

func (l *ldapConn) SearchWithPaging(req *ldap.SearchRequest, size uint32) (*ldap.SearchResult, error) {
	return l.c.SearchWithPaging(req, size)
}

func (l *ldapConn) Close() { l.c.Close() }
