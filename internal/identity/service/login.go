package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultRememberMeTTL = 30 * 24 * time.Hour
	DefaultPartialTTL    = 10 * time.Minute
)

// LoginState is where a login attempt ended up.
type LoginState int

const (
	StateUnauthenticated LoginState = iota
	StateCredentialsVerified
	StatePartialSession
	StateFullSession
)

func (s LoginState) String() string {
	switch s {
	case StateCredentialsVerified:
		return "credentials_verified"
	case StatePartialSession:
		return "partial_session"
	case StateFullSession:
		return "full_session"
	}
	return "unauthenticated"
}

type LoginRequest struct {
	Email       string
	Password    string
	DeviceToken string
	RememberMe  bool
	UserAgent   string
	IP          string
}

type LoginResult struct {
	State              LoginState
	Token              string
	ExpiresAt          time.Time
	User               domain.User
	RequiresTwoFA      bool
	TwoFAPending       bool
	TwoFASetupRequired bool
}

// VerifyResult is a full session minted from a partial one.
type VerifyResult struct {
	LoginResult
	DeviceToken string
}

// SetupResult carries the backup codes and, when setup finished a pending
// login, the full session that replaces it.
type SetupResult struct {
	BackupCodes []string
	Session     *LoginResult
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Claims(subject string, ttl time.Duration) jwtx.Claims
	Sign(claims jwtx.Claims) (string, error)
}

// PolicyResolver answers whether 2FA is required for a tenant.
type PolicyResolver interface {
	Resolve(ctx context.Context, parkID *string, companyID string) (domain.Enforcement, error)
}

// LoginService is the login state machine. Exactly one credential path runs
// per attempt, chosen by the user's auth source.
type LoginService struct {
	Users       store.Users
	Policy      PolicyResolver
	Directory   DirectoryAuthenticator
	TwoFactor   *TwoFactorService
	Devices     *TrustedDeviceService
	Tokens      TokenIssuer
	Metrics     *Metrics
	SessionTTL  time.Duration
	RememberTTL time.Duration
	PartialTTL  time.Duration
}

// dummyHash keeps the unknown-email path about as slow as a real check.
var dummyHash = sync.OnceValue(func() string {
	h, _ := cryptox.HashPassword("roomkey-dummy-password")
	return h
})

// Login verifies credentials and returns a full session, or a partial one
// together with ErrTwoFAPending when a code or enrolment is still owed.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	res, err := s.login(ctx, req)
	s.Metrics.login(loginOutcome(res, err))
	return res, err
}

func (s *LoginService) login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	log := slogx.FromContext(ctx)
	email := domain.NormalizeEmail(req.Email)

	u, err := s.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		_ = cryptox.VerifyPassword(req.Password, dummyHash())
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if !u.IsActive {
		log.Info("login refused for disabled account", slog.String("user_id", u.ID))
		return LoginResult{}, ErrAccountDisabled
	}

	var amr string
	switch u.AuthSource {
	case domain.AuthSourceLocal:
		if req.Password == "" || cryptox.VerifyPassword(req.Password, u.PasswordHash) != nil {
			return LoginResult{}, ErrInvalidCredentials
		}
		amr = jwtx.AMRPassword
	case domain.AuthSourceDirectory:
		if _, err := s.Directory.AuthenticateUser(ctx, u.Email, req.Password, u.CompanyID); err != nil {
			if errors.Is(err, ErrDirectoryConfigIncomplete) {
				log.Error("directory user has no usable directory config",
					slog.String("user_id", u.ID),
					slog.String("company_id", u.CompanyID))
				return LoginResult{}, ErrDirectoryUnavailable
			}
			return LoginResult{}, err
		}
		amr = jwtx.AMRDirectory
	case domain.AuthSourceOIDC, domain.AuthSourceSAML:
		// SSO users authenticate at their IdP.
		return LoginResult{}, ErrInvalidCredentials
	case domain.AuthSourceUnknown:
		return LoginResult{}, ErrInvalidCredentials
	}

	return s.afterCredentials(ctx, u, []string{amr}, req.DeviceToken, req.RememberMe)
}

// CompleteExternalLogin continues a login whose credentials an IdP already
// verified.
func (s *LoginService) CompleteExternalLogin(ctx context.Context, u domain.User, deviceToken string, rememberMe bool) (LoginResult, error) {
	if !u.IsActive {
		s.Metrics.login("account_disabled")
		return LoginResult{}, ErrAccountDisabled
	}
	amr := jwtx.AMROIDC
	if u.AuthSource == domain.AuthSourceSAML {
		amr = jwtx.AMRSAML
	}
	res, err := s.afterCredentials(ctx, u, []string{amr}, deviceToken, rememberMe)
	s.Metrics.login(loginOutcome(res, err))
	return res, err
}

func (s *LoginService) afterCredentials(ctx context.Context, u domain.User, amr []string, deviceToken string, rememberMe bool) (LoginResult, error) {
	policy, err := s.Policy.Resolve(ctx, u.ParkID, u.CompanyID)
	if err != nil {
		return LoginResult{}, err
	}

	switch {
	case u.TwoFAEnabled:
		trusted, err := s.Devices.IsTrusted(ctx, u.ID, deviceToken)
		if err != nil {
			return LoginResult{}, err
		}
		if trusted {
			return s.IssueFullSession(u, append(amr, jwtx.AMRDevice), rememberMe)
		}
		return s.partialSession(u, amr, rememberMe, false)
	case policy == domain.EnforcementRequired:
		return s.partialSession(u, amr, rememberMe, true)
	default:
		return s.IssueFullSession(u, amr, rememberMe)
	}
}

func (s *LoginService) partialSession(u domain.User, amr []string, rememberMe, setupRequired bool) (LoginResult, error) {
	claims := s.Tokens.Claims(u.ID, orDefault(s.PartialTTL, DefaultPartialTTL))
	claims.Email = u.Email
	claims.CompanyID = u.CompanyID
	claims.ParkID = domain.Deref(u.ParkID)
	claims.AMR = amr
	claims.Stage = jwtx.StageTwoFAPending
	claims.Scope = jwtx.ScopeTwoFA
	claims.TwoFASetupRequired = setupRequired
	claims.RememberMe = rememberMe

	token, err := s.Tokens.Sign(claims)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		State:              StatePartialSession,
		Token:              token,
		ExpiresAt:          claims.ExpiresAt.Time,
		User:               u,
		RequiresTwoFA:      true,
		TwoFAPending:       true,
		TwoFASetupRequired: setupRequired,
	}, ErrTwoFAPending
}

// IssueFullSession mints an unrestricted session token for u.
func (s *LoginService) IssueFullSession(u domain.User, amr []string, rememberMe bool) (LoginResult, error) {
	ttl := orDefault(s.SessionTTL, DefaultSessionTTL)
	if rememberMe {
		ttl = orDefault(s.RememberTTL, DefaultRememberMeTTL)
	}
	claims := s.Tokens.Claims(u.ID, ttl)
	claims.Email = u.Email
	claims.Role = u.Role.String()
	claims.CompanyID = u.CompanyID
	claims.ParkID = domain.Deref(u.ParkID)
	claims.AMR = slices.Compact(amr)
	claims.Stage = jwtx.StageFull

	token, err := s.Tokens.Sign(claims)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		State:     StateFullSession,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      u,
	}, nil
}

// VerifyTwoFA trades a pending session and a valid code for a full session,
// optionally trusting the device. A wrong code changes nothing.
func (s *LoginService) VerifyTwoFA(ctx context.Context, claims jwtx.Claims, code string, trustDevice bool, meta DeviceMeta) (VerifyResult, error) {
	log := slogx.FromContext(ctx)

	if !claims.IsPartial() {
		return VerifyResult{}, ErrForbidden
	}
	if claims.TwoFASetupRequired {
		return VerifyResult{}, ErrTwoFANotEnabled
	}
	u, err := s.activeUser(ctx, claims.Subject())
	if err != nil {
		return VerifyResult{}, err
	}

	method, err := s.TwoFactor.VerifyCode(ctx, u, code)
	if err != nil {
		s.Metrics.login("invalid_code")
		return VerifyResult{}, err
	}

	session, err := s.IssueFullSession(u, append(slices.Clone(claims.AMR), method), claims.RememberMe)
	if err != nil {
		return VerifyResult{}, err
	}
	s.Metrics.login("success")

	out := VerifyResult{LoginResult: session}
	if trustDevice {
		token, _, err := s.Devices.Trust(ctx, u.ID, meta)
		switch {
		case err == nil:
			out.DeviceToken = token
		case errors.Is(err, ErrTrustedDevicesOff):
		default:
			// The session is already earned; losing the device is not fatal.
			log.Error("failed to trust device", slog.String("user_id", u.ID), slog.Any("error", err))
		}
	}
	return out, nil
}

// ConfirmTwoFASetup finishes enrolment. When called with a pending session
// that was waiting on enrolment, it also returns the full session.
func (s *LoginService) ConfirmTwoFASetup(ctx context.Context, claims jwtx.Claims, code string) (SetupResult, error) {
	u, err := s.activeUser(ctx, claims.Subject())
	if err != nil {
		return SetupResult{}, err
	}
	codes, err := s.TwoFactor.ConfirmSetup(ctx, u.ID, code)
	if err != nil {
		return SetupResult{}, err
	}
	out := SetupResult{BackupCodes: codes}
	if claims.IsPartial() {
		session, err := s.IssueFullSession(u, append(slices.Clone(claims.AMR), jwtx.AMROTP), claims.RememberMe)
		if err != nil {
			return SetupResult{}, err
		}
		out.Session = &session
	}
	return out, nil
}

func (s *LoginService) activeUser(ctx context.Context, id string) (domain.User, error) {
	u, err := s.Users.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to read user: %w", err)
	}
	if !u.IsActive {
		return domain.User{}, ErrAccountDisabled
	}
	return u, nil
}

func loginOutcome(res LoginResult, err error) string {
	switch {
	case errors.Is(err, ErrTwoFAPending):
		if res.TwoFASetupRequired {
			return "twofa_setup_required"
		}
		return "twofa_pending"
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrDirectoryUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
