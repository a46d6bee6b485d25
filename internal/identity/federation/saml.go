package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/crewjam/saml"
)

// SPKeyPair signs AuthnRequests and is published in SP metadata.
type SPKeyPair struct {
	Key  *rsa.PrivateKey
	Cert *x509.Certificate
}

// LoadSPKeyPair reads a PEM keypair. With both paths empty it generates a
// self-signed pair that lives only as long as the process.
func LoadSPKeyPair(certFile, keyFile string) (SPKeyPair, error) {
	if certFile == "" && keyFile == "" {
		return generateSPKeyPair()
	}
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return SPKeyPair{}, fmt.Errorf("failed to load sp keypair: %w", err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return SPKeyPair{}, fmt.Errorf("failed to parse sp certificate: %w", err)
	}
	key, ok := pair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return SPKeyPair{}, fmt.Errorf("sp key must be RSA, got %T", pair.PrivateKey)
	}
	return SPKeyPair{Key: key, Cert: cert}, nil
}

func generateSPKeyPair() (SPKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return SPKeyPair{}, fmt.Errorf("failed to generate sp key: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject:      pkix.Name{CommonName: "roomkey-sp"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return SPKeyPair{}, fmt.Errorf("failed to self-sign sp certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return SPKeyPair{}, err
	}
	return SPKeyPair{Key: key, Cert: cert}, nil
}

type SAMLProvider struct {
	sp *saml.ServiceProvider
}

var _ Provider = (*SAMLProvider)(nil)

// NewSAML builds a service provider whose IdP metadata is assembled from the
// stored entity id, SSO URL and signing certificate.
func NewSAML(cfg domain.SSOConfig, keys SPKeyPair, metadataURL, acsURL string, hc *http.Client) (*SAMLProvider, error) {
	certData, err := certificateData(cfg.IDPCertificate)
	if err != nil {
		return nil, err
	}
	mdURL, err := url.Parse(metadataURL)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata url: %w", err)
	}
	acs, err := url.Parse(acsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid acs url: %w", err)
	}

	idp := &saml.EntityDescriptor{
		EntityID: cfg.IDPEntityID,
		IDPSSODescriptors: []saml.IDPSSODescriptor{{
			SSODescriptor: saml.SSODescriptor{
				RoleDescriptor: saml.RoleDescriptor{
					ProtocolSupportEnumeration: "urn:oasis:names:tc:SAML:2.0:protocol",
					KeyDescriptors: []saml.KeyDescriptor{{
						Use: "signing",
						KeyInfo: saml.KeyInfo{
							X509Data: saml.X509Data{
								X509Certificates: []saml.X509Certificate{{Data: certData}},
							},
						},
					}},
				},
			},
			SingleSignOnServices: []saml.Endpoint{
				{Binding: saml.HTTPRedirectBinding, Location: cfg.IDPSSOURL},
				{Binding: saml.HTTPPostBinding, Location: cfg.IDPSSOURL},
			},
		}},
	}

	sp := &saml.ServiceProvider{
		EntityID:          mdURL.String(),
		Key:               keys.Key,
		Certificate:       keys.Cert,
		MetadataURL:       *mdURL,
		AcsURL:            *acs,
		IDPMetadata:       idp,
		HTTPClient:        hc,
		AllowIDPInitiated: false,
		AuthnNameIDFormat: saml.EmailAddressNameIDFormat,
	}
	return &SAMLProvider{sp: sp}, nil
}

// certificateData accepts PEM or bare base64 DER and returns the base64 DER
// form metadata carries.
func certificateData(in string) (string, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return "", ErrInvalidCertificate
	}
	var der []byte
	if block, _ := pem.Decode([]byte(in)); block != nil {
		der = block.Bytes
	} else {
		raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(in), ""))
		if err != nil {
			return "", ErrInvalidCertificate
		}
		der = raw
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

func (p *SAMLProvider) Protocol() domain.SSOProtocol { return domain.ProtocolSAML }

func (p *SAMLProvider) BeginAuth(_ context.Context, state string) (AuthRequest, error) {
	dest := p.sp.GetSSOBindingLocation(saml.HTTPRedirectBinding)
	req, err := p.sp.MakeAuthenticationRequest(dest, saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		return AuthRequest{}, fmt.Errorf("failed to build authn request: %w", err)
	}
	u, err := req.Redirect(state, p.sp)
	if err != nil {
		return AuthRequest{}, fmt.Errorf("failed to encode authn request: %w", err)
	}
	return AuthRequest{URL: u.String(), RequestID: req.ID}, nil
}

// Complete verifies the POST-bound response. crewjam rejects responses where
// neither the response nor the assertion carries a valid IdP signature.
func (p *SAMLProvider) Complete(ctx context.Context, cb Callback, pending AuthRequest) (Identity, error) {
	form := url.Values{"SAMLResponse": {cb.SAMLResponse}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sp.AcsURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := req.ParseForm(); err != nil {
		return Identity{}, err
	}

	assertion, err := p.sp.ParseResponse(req, []string{pending.RequestID})
	if err != nil {
		var ire *saml.InvalidResponseError
		if errors.As(err, &ire) && ire.PrivateErr != nil {
			return Identity{}, fmt.Errorf("invalid saml response: %w", ire.PrivateErr)
		}
		return Identity{}, fmt.Errorf("invalid saml response: %w", err)
	}
	return identityFromAssertion(assertion), nil
}

func (p *SAMLProvider) Metadata() ([]byte, error) {
	out, err := xml.MarshalIndent(p.sp.Metadata(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

var (
	emailAttributes = []string{
		"email", "mail", "emailaddress",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
		"urn:oid:0.9.2342.19200300.100.1.3",
	}
	nameAttributes = []string{
		"displayname", "name", "cn",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
		"urn:oid:2.16.840.1.113730.3.1.241",
	}
)

func identityFromAssertion(a *saml.Assertion) Identity {
	attrs := map[string]string{}
	for _, st := range a.AttributeStatements {
		for _, attr := range st.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			v := attr.Values[0].Value
			attrs[strings.ToLower(attr.Name)] = v
			if attr.FriendlyName != "" {
				attrs[strings.ToLower(attr.FriendlyName)] = v
			}
		}
	}

	var id Identity
	if a.Subject != nil && a.Subject.NameID != nil {
		id.Subject = a.Subject.NameID.Value
	}
	id.Email = firstAttr(attrs, emailAttributes)
	if id.Email == "" && strings.Contains(id.Subject, "@") {
		id.Email = id.Subject
	}
	id.Name = firstAttr(attrs, nameAttributes)
	if id.Name == "" {
		given, sur := attrs["givenname"], attrs["surname"]
		id.Name = strings.TrimSpace(given + " " + sur)
	}
	return id
}

func firstAttr(attrs map[string]string, names []string) string {
	for _, n := range names {
		if v := attrs[strings.ToLower(n)]; v != "" {
			return v
		}
	}
	return ""
}
