package directorytest

import (
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"
)

type filter struct {
	packet *ber.Packet
}

// parseFilter compiles an RFC 4515 filter with go-ldap. Equality, presence,
// substring, and the boolean operators are evaluated. Anything else is
// rejected so a test never silently matches on an unsupported operator.
func parseFilter(s string) (filter, error) {
	p, err := ldap.CompileFilter(strings.TrimSpace(s))
	if err != nil {
		return filter{}, err
	}
	if err := supported(p); err != nil {
		return filter{}, err
	}
	return filter{packet: p}, nil
}

func (f filter) match(attrs map[string][]string) bool {
	return evaluate(f.packet, attrs)
}

func supported(p *ber.Packet) error {
	switch p.Tag {
	case ldap.FilterAnd, ldap.FilterOr, ldap.FilterNot:
		for _, c := range p.Children {
			if err := supported(c); err != nil {
				return err
			}
		}
		return nil
	case ldap.FilterEqualityMatch, ldap.FilterSubstrings, ldap.FilterPresent:
		return nil
	}
	return fmt.Errorf("unsupported filter operator %q", ldap.FilterMap[uint64(p.Tag)])
}

func evaluate(p *ber.Packet, attrs map[string][]string) bool {
	switch p.Tag {
	case ldap.FilterAnd:
		for _, c := range p.Children {
			if !evaluate(c, attrs) {
				return false
			}
		}
		return true
	case ldap.FilterOr:
		for _, c := range p.Children {
			if evaluate(c, attrs) {
				return true
			}
		}
		return false
	case ldap.FilterNot:
		return len(p.Children) == 1 && !evaluate(p.Children[0], attrs)
	case ldap.FilterPresent:
		return len(values(attrs, text(p))) > 0
	case ldap.FilterEqualityMatch:
		want := text(p.Children[1])
		for _, v := range values(attrs, text(p.Children[0])) {
			if strings.EqualFold(v, want) {
				return true
			}
		}
		return false
	case ldap.FilterSubstrings:
		for _, v := range values(attrs, text(p.Children[0])) {
			if substringsMatch(p.Children[1].Children, v) {
				return true
			}
		}
		return false
	}
	return false
}

// substringsMatch applies initial, any and final parts in order, ignoring case.
func substringsMatch(parts []*ber.Packet, v string) bool {
	v = strings.ToLower(v)
	for _, part := range parts {
		s := strings.ToLower(text(part))
		switch part.Tag {
		case ldap.FilterSubstringsInitial:
			if !strings.HasPrefix(v, s) {
				return false
			}
			v = v[len(s):]
		case ldap.FilterSubstringsAny:
			i := strings.Index(v, s)
			if i < 0 {
				return false
			}
			v = v[i+len(s):]
		case ldap.FilterSubstringsFinal:
			if !strings.HasSuffix(v, s) {
				return false
			}
			v = ""
		}
	}
	return true
}

func values(attrs map[string][]string, name string) []string {
	for k, vs := range attrs {
		if strings.EqualFold(k, name) {
			return vs
		}
	}
	return nil
}

func text(p *ber.Packet) string {
	if s, ok := p.Value.(string); ok {
		return s
	}
	return p.Data.String()
}
