package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vpscenter/authd/internal/domain"
	"github.com/vpscenter/authd/pkg/security"
)

const qrCodeSize = 256

// Options carries the tunables injected into the usecase. Zero values fall
// back to sane defaults; tests inject a fixed Now.
type Options struct {
	Hash       security.HashParams
	TOTPIssuer string
	TOTPWindow uint
	Now        func() time.Time
}

// AuthUsecase orchestrates login, the optional TOTP second factor, token
// refresh with rotation, logout, 2FA lifecycle, and password change. It holds
// no per-attempt state: the two-step login carries its progress on the client
// (email+password are resubmitted with the code), trading one extra password
// hash for not having a server-side pending-MFA store.
type AuthUsecase struct {
	users      domain.UserRepository
	blacklist  domain.TokenBlacklist
	tokens     *security.TokenIssuer
	hash       security.HashParams
	totpIssuer string
	totpWindow uint
	now        func() time.Time
}

func NewAuthUsecase(users domain.UserRepository, blacklist domain.TokenBlacklist, tokens *security.TokenIssuer, opts Options) *AuthUsecase {
	if opts.TOTPIssuer == "" {
		opts.TOTPIssuer = "VPS-Center"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuthUsecase{
		users:      users,
		blacklist:  blacklist,
		tokens:     tokens,
		hash:       opts.Hash.Normalized(),
		totpIssuer: opts.TOTPIssuer,
		totpWindow: opts.TOTPWindow,
		now:        opts.Now,
	}
}

// TOTPSetup is returned by SetupTOTP: the Base32 secret for manual entry and
// a PNG data URL of the provisioning QR code.
type TOTPSetup struct {
	Secret string `json:"secret"`
	QRCode string `json:"qrCode"`
}

// checkCredentials resolves email+password to a user. Unknown email and
// wrong password collapse into the same error so the API cannot be used to
// enumerate accounts.
func (u *AuthUsecase) checkCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := u.users.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// Login validates credentials. When the account has 2FA enabled it returns
// requiresTwoFactor=true instead of tokens; the client must call
// LoginWithTOTP with the full credentials plus a code.
func (u *AuthUsecase) Login(ctx context.Context, email, password string) (pair *domain.TokenPair, requiresTwoFactor bool, err error) {
	user, err := u.checkCredentials(ctx, email, password)
	if err != nil {
		return nil, false, err
	}
	if user.TOTPEnabled {
		return nil, true, nil
	}
	pair, err = u.issueTokens(ctx, user)
	return pair, false, err
}

// LoginWithTOTP is the second step of a 2FA login. The password is verified
// again in full; nothing links this call to a prior Login. When the account
// has 2FA disabled the code is accepted unchecked, making this a strict
// superset of Login.
func (u *AuthUsecase) LoginWithTOTP(ctx context.Context, email, password, code string) (*domain.TokenPair, error) {
	user, err := u.checkCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		if !security.VerifyTOTPCode(user.TOTPSecret, code, u.totpWindow, u.now()) {
			return nil, domain.ErrInvalidTOTP
		}
	}
	return u.issueTokens(ctx, user)
}

// RefreshTokens exchanges a refresh token for a fresh pair. The presented
// token is revoked before the new pair is returned, so it is single-use: a
// second exchange of the same token fails with TOKEN_REVOKED, which doubles
// as the replay-detection signal. Two refreshes racing with the same token
// may both succeed before either revocation commits; the window is accepted
// rather than serializing per token.
func (u *AuthUsecase) RefreshTokens(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := u.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}

	revoked, err := u.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, domain.ErrTokenRevoked
	}

	user, err := u.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound.WithStatus(http.StatusUnauthorized)
		}
		return nil, err
	}

	if err := u.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}
	return u.issueTokens(ctx, user)
}

// Logout revokes the presented refresh token. The token is decoded without
// signature verification on purpose: it may already be expired but still
// identifiable, and all we need is its jti and expiry. The access token's jti
// is accepted for symmetry but access tokens are left to expire on their own.
func (u *AuthUsecase) Logout(ctx context.Context, accessTokenJTI, refreshToken string) error {
	_ = accessTokenJTI

	claims := security.DecodeUnverified(refreshToken)
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	return u.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// SetupTOTP generates and persists a new secret for the user before any
// confirmation. An abandoned setup leaves a dangling secret, which grants
// nothing: totp_enabled stays false until EnableTOTP verifies a code.
func (u *AuthUsecase) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	user, err := u.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, domain.ErrTOTPAlreadyEnabled
	}

	enrollment, err := security.GenerateTOTPSecret(u.totpIssuer, user.Email)
	if err != nil {
		return nil, err
	}
	if err := u.users.UpdateTOTP(ctx, user.ID, false, enrollment.Secret); err != nil {
		return nil, err
	}

	qr, err := security.QRCodePNG(enrollment.URI, qrCodeSize)
	if err != nil {
		return nil, err
	}
	return &TOTPSetup{Secret: enrollment.Secret, QRCode: qr}, nil
}

// EnableTOTP confirms enrollment by verifying one code against the secret
// stored by SetupTOTP, then flips the enabled flag.
func (u *AuthUsecase) EnableTOTP(ctx context.Context, userID, code string) error {
	user, err := u.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPEnabled {
		return domain.ErrTOTPAlreadyEnabled
	}
	if user.TOTPSecret == "" {
		return domain.ErrTOTPNotSetup
	}
	if !security.VerifyTOTPCode(user.TOTPSecret, code, u.totpWindow, u.now()) {
		return domain.ErrInvalidTOTP.WithStatus(http.StatusBadRequest)
	}
	return u.users.UpdateTOTP(ctx, user.ID, true, user.TOTPSecret)
}

// DisableTOTP requires both the current password and a valid code; turning
// off the second factor takes two proofs. Secret and flag are cleared
// together.
func (u *AuthUsecase) DisableTOTP(ctx context.Context, userID, password, code string) error {
	user, err := u.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return domain.ErrTOTPNotEnabled
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		return domain.ErrInvalidPassword
	}
	if !security.VerifyTOTPCode(user.TOTPSecret, code, u.totpWindow, u.now()) {
		return domain.ErrInvalidTOTP
	}
	return u.users.UpdateTOTP(ctx, user.ID, false, "")
}

// ChangePassword swaps the stored hash after verifying the current password.
// Existing tokens stay valid until they expire or are refreshed away; see
// TestChangePasswordKeepsExistingTokens for the documented trade-off.
func (u *AuthUsecase) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := u.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !security.VerifyPassword(currentPassword, user.PasswordHash) {
		return domain.ErrInvalidPassword
	}

	hash, err := security.HashPassword(newPassword, u.hash)
	if err != nil {
		return err
	}
	return u.users.UpdatePassword(ctx, user.ID, hash)
}

// CurrentUser returns the profile for an authenticated identity.
func (u *AuthUsecase) CurrentUser(ctx context.Context, userID string) (*domain.Profile, error) {
	user, err := u.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// ListUsers returns all user profiles. Restricted to admins at the route
// level.
func (u *AuthUsecase) ListUsers(ctx context.Context) ([]*domain.Profile, error) {
	users, err := u.users.List(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make([]*domain.Profile, 0, len(users))
	for _, user := range users {
		profiles = append(profiles, user.Profile())
	}
	return profiles, nil
}

func (u *AuthUsecase) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// issueTokens mints a fresh access/refresh pair from current user data and
// records the login. Last-login is advisory telemetry; a write failure does
// not abort the login.
func (u *AuthUsecase) issueTokens(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	accessToken, err := u.tokens.IssueAccess(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, err
	}
	refreshToken, err := u.tokens.IssueRefresh(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, err
	}

	_ = u.users.UpdateLastLogin(ctx, user.ID, u.now().UTC())

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Profile(),
	}, nil
}
