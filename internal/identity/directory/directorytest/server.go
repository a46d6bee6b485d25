// Package directorytest is an in-memory directory that satisfies
// directory.Dialer. It understands enough of RFC 4515 filters for the
// searches the client issues.
package directorytest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aussiebroadwan/roomkey/internal/identity/directory"
	"github.com/go-ldap/ldap/v3"
)

// ErrDown is returned by Dial while the server is marked down.
var ErrDown = errors.New("directorytest: server down")

type object struct {
	dn       string
	attrs    map[string][]string
	password string
}

type Server struct {
	mu      sync.Mutex
	objects map[string]object // keyed by lower-cased DN
	down    bool

	dials int
	binds []string

	// OnSearch, when set, runs before every search. It can block to hold a
	// sync open or fail the request.
	OnSearch func(req *ldap.SearchRequest) error
}

var _ directory.Dialer = (*Server)(nil)

func NewServer() *Server {
	return &Server{objects: map[string]object{}}
}

// AddAccount adds a bindable entry with no attributes, such as a service
// account.
func (s *Server) AddAccount(dn, password string) {
	s.put(object{dn: dn, attrs: map[string][]string{}, password: password})
}

// AddUser adds a person entry.
func (s *Server) AddUser(dn, email, name, password string) {
	s.put(object{
		dn: dn,
		attrs: map[string][]string{
			"objectClass": {"person", "inetOrgPerson"},
			"mail":        {email},
			"cn":          {name},
		},
		password: password,
	})
}

// AddGroup adds a groupOfNames entry with the given member DNs.
func (s *Server) AddGroup(dn string, members ...string) {
	s.put(object{
		dn: dn,
		attrs: map[string][]string{
			"objectClass": {"groupOfNames"},
			"member":      members,
		},
	})
}

// Remove deletes an entry.
func (s *Server) Remove(dn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, strings.ToLower(dn))
}

// SetAttr replaces one attribute of an entry.
func (s *Server) SetAttr(dn, attr string, values ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[strings.ToLower(dn)]
	if !ok {
		return
	}
	o.attrs[attr] = values
}

// SetDown makes subsequent dials fail.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Dials counts opened connections.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Binds lists the DNs of successful binds in order.
func (s *Server) Binds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.binds...)
}

func (s *Server) put(o object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[strings.ToLower(o.dn)] = o
}

func (s *Server) Dial(ctx context.Context, _ directory.Params) (directory.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, ErrDown
	}
	s.dials++
	return &conn{s: s}, nil
}

type conn struct {
	s     *Server
	bound bool
}

func (c *conn) Bind(dn, password string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	// Unauthenticated bind, as real servers allow.
	if password == "" {
		c.bound = false
		return nil
	}
	o, ok := c.s.objects[strings.ToLower(dn)]
	if !ok || o.password == "" || o.password != password {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
	}
	c.bound = true
	c.s.binds = append(c.s.binds, o.dn)
	return nil
}

func (c *conn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if hook := c.s.OnSearch; hook != nil {
		if err := hook(req); err != nil {
			return nil, err
		}
	}

	f, err := parseFilter(req.Filter)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultFilterError, err)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if !c.bound {
		return nil, ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("bind required"))
	}

	base := strings.ToLower(req.BaseDN)
	res := &ldap.SearchResult{}
	for key, o := range c.s.objects {
		if key != base && !strings.HasSuffix(key, ","+base) {
			continue
		}
		if !f.match(o.attrs) {
			continue
		}
		res.Entries = append(res.Entries, ldap.NewEntry(o.dn, pick(o.attrs, req.Attributes)))
		if req.SizeLimit > 0 && len(res.Entries) > req.SizeLimit {
			return res, ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded"))
		}
	}
	return res, nil
}

func (c *conn) SearchWithPaging(req *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	return c.Search(req)
}

func (c *conn) Close() {}

func pick(attrs map[string][]string, want []string) map[string][]string {
	out := map[string][]string{}
	for _, w := range want {
		for name, values := range attrs {
			if strings.EqualFold(name, w) {
				out[name] = append([]string(nil), values...)
			}
		}
	}
	return out
}
