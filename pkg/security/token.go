package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType tags a token as access or refresh. The tag is checked on every
// verification, so the two kinds stay mutually unacceptable even if both
// signing secrets were configured to the same value.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// ErrInvalidToken covers every verification failure: bad signature, expiry,
// malformed input, wrong token type. No further detail is exposed.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload carried by both token kinds. Email and Role are a
// snapshot at issuance and may go stale until the next refresh. The
// RegisteredClaims ID field is the jti used as the revocation key.
type Claims struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer creates and verifies the access/refresh token pair. Access and
// refresh tokens use distinct HMAC secrets and distinct type tags.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the issuer's time source. Intended for tests that need
// deterministic issuance and expiry.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	c := *i
	c.now = now
	return &c
}

// IssueAccess signs a short-lived access token with a fresh jti.
func (i *TokenIssuer) IssueAccess(userID, email string, role string) (string, error) {
	return i.sign(userID, email, role, TokenTypeAccess, i.accessSecret, i.accessTTL)
}

// IssueRefresh signs a refresh token with the separate refresh secret.
func (i *TokenIssuer) IssueRefresh(userID, email string, role string) (string, error) {
	return i.sign(userID, email, role, TokenTypeRefresh, i.refreshSecret, i.refreshTTL)
}

func (i *TokenIssuer) sign(userID, email, role string, typ TokenType, secret []byte, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// VerifyAccess validates signature, expiry, and the access type tag.
func (i *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return i.verify(token, TokenTypeAccess, i.accessSecret)
}

// VerifyRefresh validates signature, expiry, and the refresh type tag.
func (i *TokenIssuer) VerifyRefresh(token string) (*Claims, error) {
	return i.verify(token, TokenTypeRefresh, i.refreshSecret)
}

func (i *TokenIssuer) verify(token string, typ TokenType, secret []byte) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)

	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.TokenType != typ {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// DecodeUnverified extracts claims without checking the signature or expiry.
// It exists solely so revocation bookkeeping (logout) can recover the jti and
// expiry of a token that may already be expired. It must never feed an
// authorization decision.
func DecodeUnverified(token string) *Claims {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}
