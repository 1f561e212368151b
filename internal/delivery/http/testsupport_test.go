package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vpscenter/authd/internal/domain"
	"github.com/vpscenter/authd/internal/usecase"
	"github.com/vpscenter/authd/pkg/security"
)

var testHashParams = security.HashParams{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type memUserRepo struct {
	users map[string]*domain.User
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	copy := *u
	return &copy, nil
}

func (r *memUserRepo) List(_ context.Context) ([]*domain.User, error) {
	var out []*domain.User
	for _, u := range r.users {
		copy := *u
		out = append(out, &copy)
	}
	return out, nil
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	if u, ok := r.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (r *memUserRepo) UpdateTOTP(_ context.Context, id string, enabled bool, secret string) error {
	u, ok := r.users[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	u.TOTPEnabled = enabled
	u.TOTPSecret = secret
	return nil
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id string, hash string) error {
	u, ok := r.users[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	u.PasswordHash = hash
	return nil
}

type memBlacklist struct {
	entries map[string]time.Time
}

func (b *memBlacklist) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if _, ok := b.entries[jti]; !ok {
		b.entries[jti] = expiresAt
	}
	return nil
}

func (b *memBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	exp, ok := b.entries[jti]
	return ok && exp.After(time.Now()), nil
}

type testApp struct {
	e         *echo.Echo
	users     *memUserRepo
	blacklist *memBlacklist
	tokens    *security.TokenIssuer
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newTestApp(t *testing.T, users ...*domain.User) *testApp {
	t.Helper()

	repo := &memUserRepo{users: map[string]*domain.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	blacklist := &memBlacklist{entries: map[string]time.Time{}}
	tokens := security.NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)

	uc := usecase.NewAuthUsecase(repo, blacklist, tokens, usecase.Options{
		Hash:       testHashParams,
		TOTPIssuer: "VPS-Center",
		TOTPWindow: 1,
	})

	e := echo.New()
	authn := Authenticate(tokens, blacklist, repo)
	v1 := e.Group("/v1")
	NewAuthHandler(v1, uc, authn, passthrough)
	NewMFAHandler(v1, uc, authn)
	NewAdminHandler(v1, uc, authn)

	return &testApp{e: e, users: repo, blacklist: blacklist, tokens: tokens}
}

func seedUser(t *testing.T, id, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password, testHashParams)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &domain.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
}

type envelope struct {
	Success           bool            `json:"success"`
	Data              json.RawMessage `json:"data"`
	Error             string          `json:"error"`
	Code              string          `json:"code"`
	Message           string          `json:"message"`
	RequiresTwoFactor bool            `json:"requiresTwoFactor"`
}

func (a *testApp) request(t *testing.T, method, path, bearer string, body string) (int, *envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, &env
}

func decodeTokenPair(t *testing.T, data json.RawMessage) *domain.TokenPair {
	t.Helper()
	var pair domain.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		t.Fatalf("decode token pair: %v", err)
	}
	return &pair
}

func mustStatus(t *testing.T, got, want int, env *envelope) {
	t.Helper()
	if got != want {
		t.Fatalf("status %d, want %d (code=%s error=%s)", got, want, env.Code, env.Error)
	}
}
