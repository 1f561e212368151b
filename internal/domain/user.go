package domain

import (
	"context"
	"errors"
	"time"
)

// Role is the closed set of authorization tiers. Anything the store hands
// back that we do not recognize collapses to the non-privileged tier.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole maps a raw role column value onto the closed enumeration.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// User is the central identity record.
//
// TOTPSecret may be set while TOTPEnabled is false: that is the
// setup-in-progress window between /2fa/setup and /2fa/enable. The inverse
// (enabled with no secret) is never valid.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	TOTPEnabled  bool       `json:"totpEnabled"`
	TOTPSecret   string     `json:"-"`
	LastLogin    *time.Time `json:"lastLogin"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Profile is the client-safe projection of a User.
type Profile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	TOTPEnabled bool       `json:"totpEnabled"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Profile returns the projection of u that may be sent to clients.
func (u *User) Profile() *Profile {
	return &Profile{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		TOTPEnabled: u.TOTPEnabled,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
	}
}

// TokenPair is the payload returned after a successful authentication.
type TokenPair struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         *Profile `json:"user"`
}

// Identity is attached to a request after the authorization middleware has
// verified the bearer token. TokenJTI identifies the access token that
// authorized the current request.
type Identity struct {
	UserID      string
	Email       string
	Role        Role
	TOTPEnabled bool
	TokenJTI    string
}

// ErrRecordNotFound is returned by repositories when a lookup matches
// nothing. Callers translate it into the appropriate AppError.
var ErrRecordNotFound = errors.New("record not found")

// UserRepository is the persistence contract for user records.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Create(ctx context.Context, user *User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateTOTP(ctx context.Context, id string, enabled bool, secret string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}

// TokenBlacklist records revoked token identifiers until their natural
// expiry. Revoke must be idempotent: revoking an already-revoked jti is a
// no-op, not an error.
type TokenBlacklist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
