package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/cryptox"
	"github.com/aussiebroadwan/roomkey/pkg/idx"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1 // accept one step either side
	qrSize     = 200
)

// TwoFactorStore is the slice of the store the 2FA flows write through.
type TwoFactorStore interface {
	store.Transactor
	Users() store.Users
	BackupCodes() store.BackupCodes
}

// TwoFASetup is handed to the user once when enrolment starts.
type TwoFASetup struct {
	Secret     string
	QRCodeURL  string // data:image/png;base64,...
	OTPAuthURL string
}

// DisableRequest carries whichever proof the user's auth source takes.
type DisableRequest struct {
	Password string
	Code     string
}

// TwoFactorService manages TOTP enrolment, verification and backup codes.
// Secrets are stored vault-sealed.
type TwoFactorService struct {
	Store     TwoFactorStore
	Vault     SecretBox
	Directory DirectoryAuthenticator
	Clock     clockwork.Clock
	Issuer    string // TOTP issuer label
}

// BeginSetup generates a fresh TOTP secret and stores it unconfirmed.
// Calling it again before confirming replaces the pending secret.
func (s *TwoFactorService) BeginSetup(ctx context.Context, userID string) (TwoFASetup, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return TwoFASetup{}, err
	}
	if u.TwoFAEnabled {
		return TwoFASetup{}, ErrTwoFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TwoFASetup{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return TwoFASetup{}, fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return TwoFASetup{}, fmt.Errorf("failed to encode QR code: %w", err)
	}

	sealed, err := s.Vault.Encrypt(key.Secret())
	if err != nil {
		return TwoFASetup{}, fmt.Errorf("failed to seal TOTP secret: %w", err)
	}
	if err := s.Store.Users().SetTwoFASecret(ctx, u.ID, sealed, s.Clock.Now()); err != nil {
		return TwoFASetup{}, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	return TwoFASetup{
		Secret:     key.Secret(),
		QRCodeURL:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		OTPAuthURL: key.URL(),
	}, nil
}

// ConfirmSetup checks code against the pending secret, then enables 2FA and
// stores a fresh batch of backup codes in one transaction. The plaintext
// codes are returned once.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID, code string) ([]string, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.TwoFAEnabled {
		return nil, ErrTwoFAAlreadyEnabled
	}
	if u.TwoFASecret == nil || *u.TwoFASecret == "" {
		return nil, ErrTwoFANotEnrolled
	}
	ok, err := s.validateTOTP(*u.TwoFASecret, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidVerificationCode
	}

	codes, rows, err := s.newBackupCodes(u.ID)
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := replaceBackupCodes(ctx, tx.BackupCodes(), u.ID, rows); err != nil {
			return err
		}
		if err := tx.Users().EnableTwoFA(ctx, u.ID, s.Clock.Now()); err != nil {
			return fmt.Errorf("failed to enable 2FA: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("two-factor enabled", slog.String("user_id", u.ID))
	return codes, nil
}

// VerifyCode accepts a live TOTP code or an unused backup code and returns
// the matching AMR value. A backup code is deleted as it is accepted.
func (s *TwoFactorService) VerifyCode(ctx context.Context, u domain.User, code string) (string, error) {
	if !u.TwoFAEnabled || u.TwoFASecret == nil {
		return "", ErrTwoFANotEnabled
	}
	if code == "" {
		return "", ErrInvalidVerificationCode
	}

	if isTOTPShaped(code) {
		ok, err := s.validateTOTP(*u.TwoFASecret, code)
		if err != nil {
			return "", err
		}
		if ok {
			return jwtx.AMROTP, nil
		}
		return "", ErrInvalidVerificationCode
	}

	ok, err := s.redeemBackupCode(ctx, u.ID, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidVerificationCode
	}
	slogx.FromContext(ctx).Info("backup code redeemed", slog.String("user_id", u.ID))
	return jwtx.AMRBackup, nil
}

// RegenerateBackupCodes replaces every backup code after a valid TOTP code.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TwoFAEnabled || u.TwoFASecret == nil {
		return nil, ErrTwoFANotEnabled
	}
	ok, err := s.validateTOTP(*u.TwoFASecret, totpCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidVerificationCode
	}

	codes, rows, err := s.newBackupCodes(u.ID)
	if err != nil {
		return nil, err
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return replaceBackupCodes(ctx, tx.BackupCodes(), u.ID, rows)
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// RemainingBackupCodes counts the unused backup codes of userID.
func (s *TwoFactorService) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	return s.Store.BackupCodes().CountBackupCodes(ctx, userID)
}

// Disable turns 2FA off once the user proves themselves through their
// authoritative source: the password for local and directory users, a TOTP
// code for SSO users. The secret, backup codes and every trusted device go
// in one transaction.
func (s *TwoFactorService) Disable(ctx context.Context, userID string, req DisableRequest) error {
	log := slogx.FromContext(ctx)

	u, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFAEnabled {
		return ErrTwoFANotEnabled
	}

	switch u.AuthSource {
	case domain.AuthSourceLocal:
		if req.Password == "" || cryptox.VerifyPassword(req.Password, u.PasswordHash) != nil {
			return ErrInvalidCredentials
		}
	case domain.AuthSourceDirectory:
		if req.Password == "" {
			return ErrInvalidCredentials
		}
		if _, err := s.Directory.AuthenticateUser(ctx, u.Email, req.Password, u.CompanyID); err != nil {
			return err
		}
	case domain.AuthSourceOIDC, domain.AuthSourceSAML:
		ok, err := s.validateTOTP(domain.Deref(u.TwoFASecret), req.Code)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidVerificationCode
		}
	case domain.AuthSourceUnknown:
		return ErrInvalidCredentials
	}

	var revoked int
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, u.ID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		n, err := tx.TrustedDevices().DeleteUserTrustedDevices(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("failed to revoke trusted devices: %w", err)
		}
		revoked = n
		if err := tx.Users().DisableTwoFA(ctx, u.ID, s.Clock.Now()); err != nil {
			return fmt.Errorf("failed to disable 2FA: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("two-factor disabled",
		slog.String("user_id", u.ID),
		slog.Int("devices_revoked", revoked))
	return nil
}

func (s *TwoFactorService) user(ctx context.Context, id string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to read user: %w", err)
	}
	return u, nil
}

func (s *TwoFactorService) validateTOTP(sealed, code string) (bool, error) {
	if sealed == "" || code == "" {
		return false, nil
	}
	secret, err := s.Vault.Decrypt(sealed)
	if err != nil {
		return false, fmt.Errorf("failed to open TOTP secret: %w", err)
	}
	ok, err := totp.ValidateCustom(code, secret, s.Clock.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Malformed input is just a wrong code.
		return false, nil
	}
	return ok, nil
}

func (s *TwoFactorService) redeemBackupCode(ctx context.Context, userID, code string) (bool, error) {
	normalized := cryptox.NormalizeBackupCode(code)
	if normalized == "" {
		return false, nil
	}
	codes, err := s.Store.BackupCodes().ListBackupCodes(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to list backup codes: %w", err)
	}
	for _, c := range codes {
		if cryptox.VerifyPassword(normalized, c.CodeHash) != nil {
			continue
		}
		err := s.Store.BackupCodes().DeleteBackupCode(ctx, c.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Someone else redeemed it first.
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to consume backup code: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (s *TwoFactorService) newBackupCodes(userID string) ([]string, []domain.BackupCode, error) {
	now := s.Clock.Now()
	codes := make([]string, domain.BackupCodeCount)
	rows := make([]domain.BackupCode, domain.BackupCodeCount)
	for i := range domain.BackupCodeCount {
		code, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		hash, err := cryptox.HashPassword(cryptox.NormalizeBackupCode(code))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		codes[i] = code
		rows[i] = domain.BackupCode{ID: idx.New().String(), UserID: userID, CodeHash: hash, CreatedAt: now}
	}
	return codes, rows, nil
}

func replaceBackupCodes(ctx context.Context, repo store.BackupCodes, userID string, rows []domain.BackupCode) error {
	if err := repo.DeleteAllBackupCodes(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	for _, c := range rows {
		if err := repo.CreateBackupCode(ctx, c); err != nil {
			return fmt.Errorf("failed to store backup code: %w", err)
		}
	}
	return nil
}

func isTOTPShaped(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
