package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

const defaultPageSize = 500

// Entry is a directory object with its requested attributes.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// First returns the first value of attr, matching the name case-insensitively.
func (e Entry) First(attr string) string {
	for name, values := range e.Attributes {
		if strings.EqualFold(name, attr) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// Values returns every value of attr.
func (e Entry) Values(attr string) []string {
	for name, values := range e.Attributes {
		if strings.EqualFold(name, attr) {
			return values
		}
	}
	return nil
}

type Client struct {
	Dialer   Dialer
	PageSize uint32
}

func NewClient(d Dialer) *Client {
	if d == nil {
		d = LDAPDialer{}
	}
	return &Client{Dialer: d, PageSize: defaultPageSize}
}

// UserFilter scopes the configured user filter to one email address. The
// address is escaped so it cannot alter the filter.
func UserFilter(base, emailAttr, email string) string {
	return fmt.Sprintf("(&%s(%s=%s))", base, emailAttr, ldap.EscapeFilter(email))
}

// VerifyPassword binds as the service account, finds exactly one entry for
// email and then proves the password by binding as that entry on a second
// connection.
func (c *Client) VerifyPassword(ctx context.Context, p Params, email, password string) VerifyOutcome {
	// An empty password would be an unauthenticated bind, which succeeds.
	if password == "" {
		return WrongPassword{}
	}

	var found Entry
	err := c.withServiceBind(ctx, p, func(conn Conn) error {
		req := ldap.NewSearchRequest(
			p.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			2, timeLimit(p), false,
			UserFilter(p.UserFilter, p.EmailAttr, email),
			[]string{p.EmailAttr, p.NameAttr},
			nil,
		)
		res, err := conn.Search(req)
		if err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) ||
				ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
				return errNoMatch
			}
			return fmt.Errorf("failed to search user: %w", err)
		}
		if len(res.Entries) != 1 {
			return errNoMatch
		}
		found = toEntry(res.Entries[0])
		return nil
	})
	switch {
	case errors.Is(err, errNoMatch):
		return NotFound{}
	case err != nil:
		return Unreachable{Err: err}
	}

	userConn, err := c.Dialer.Dial(ctx, p)
	if err != nil {
		return Unreachable{Err: err}
	}
	defer userConn.Close()

	if err := userConn.Bind(found.DN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return WrongPassword{}
		}
		return Unreachable{Err: fmt.Errorf("failed to bind as user: %w", err)}
	}

	mail := found.First(p.EmailAttr)
	if mail == "" {
		mail = email
	}
	return Verified{Identity: Identity{
		DN:    found.DN,
		Email: mail,
		Name:  found.First(p.NameAttr),
	}}
}

// SearchUsers returns every entry under BaseDN matching the user filter.
func (c *Client) SearchUsers(ctx context.Context, p Params) ([]Entry, error) {
	var out []Entry
	err := c.withServiceBind(ctx, p, func(conn Conn) error {
		entries, err := c.search(conn, p, p.BaseDN, p.UserFilter, []string{p.EmailAttr, p.NameAttr})
		out = entries
		return err
	})
	return out, err
}

// SearchGroups returns every group under GroupBaseDN with its members.
func (c *Client) SearchGroups(ctx context.Context, p Params) ([]Entry, error) {
	var out []Entry
	err := c.withServiceBind(ctx, p, func(conn Conn) error {
		entries, err := c.search(conn, p, p.GroupBaseDN, p.GroupFilter, []string{p.GroupMemberAttr})
		out = entries
		return err
	})
	return out, err
}

// TestConnection binds as the service account and counts matching users.
func (c *Client) TestConnection(ctx context.Context, p Params) (int, error) {
	users, err := c.SearchUsers(ctx, p)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

var errNoMatch = errors.New("directory: no unique match")

func (c *Client) withServiceBind(ctx context.Context, p Params, fn func(Conn) error) error {
	conn, err := c.Dialer.Dial(ctx, p)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Bind(p.BindDN, p.BindPassword); err != nil {
		return fmt.Errorf("failed to bind service account: %w", err)
	}
	return fn(conn)
}

func (c *Client) search(conn Conn, p Params, base, filter string, attrs []string) ([]Entry, error) {
	req := ldap.NewSearchRequest(
		base, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		0, timeLimit(p), false,
		filter, attrs, nil,
	)

	size := c.PageSize
	if size == 0 {
		size = defaultPageSize
	}
	res, err := conn.SearchWithPaging(req, size)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", base, err)
	}

	out := make([]Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, toEntry(e))
	}
	return out, nil
}

func toEntry(e *ldap.Entry) Entry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Name] = a.Values
	}
	return Entry{DN: e.DN, Attributes: attrs}
}

func timeLimit(p Params) int {
	if p.Timeout <= 0 {
		return int(DefaultTimeout.Seconds())
	}
	return int(p.Timeout.Seconds())
}
