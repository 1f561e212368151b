package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/vpscenter/authd/internal/domain"
)

func loginBody(email, password string) string {
	b, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return string(b)
}

// Plain login followed by a profile fetch with the issued access token.
func TestLoginThenMe(t *testing.T) {
	app := newTestApp(t, seedUser(t, "u1", "a@x.com", "Passw0rd!", domain.RoleUser))

	status, env := app.request(t, http.MethodPost, "/v1/auth/login", "", loginBody("a@x.com", "Passw0rd!"))
	mustStatus(t, status, http.StatusOK, env)
	if env.RequiresTwoFactor {
		t.Fatal("unexpected 2FA challenge")
	}
	pair := decodeTokenPair(t, env.Data)
	if pair.User.Email != "a@x.com" {
		t.Fatalf("login profile email %q", pair.User.Email)
	}

	status, env = app.request(t, http.MethodGet, "/v1/auth/me", pair.AccessToken, "")
	mustStatus(t, status, http.StatusOK, env)

	var profile domain.Profile
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Email != "a@x.com" {
		t.Fatalf("me email %q, want a@x.com", profile.Email)
	}
}

func TestLoginInvalidCredentialsResponse(t *testing.T) {
	app := newTestApp(t, seedUser(t, "u1", "a@x.com", "Passw0rd!", domain.RoleUser))

	for _, body := range []string{
		loginBody("a@x.com", "wrong"),
		loginBody("nobody@x.com", "Passw0rd!"),
	} {
		status, env := app.request(t, http.MethodPost, "/v1/auth/login", "", body)
		mustStatus(t, status, http.StatusUnauthorized, env)
		if env.Code != "INVALID_CREDENTIALS" {
			t.Fatalf("code %q, want INVALID_CREDENTIALS", env.Code)
		}
		// Same message either way: no account enumeration.
		if env.Error != "Invalid email or password" {
			t.Fatalf("unexpected error message %q", env.Error)
		}
	}
}

func TestLoginValidation(t *testing.T) {
	app := newTestApp(t)

	status, env := app.request(t, http.MethodPost, "/v1/auth/login", "", `{"email":"a@x.com"}`)
	mustStatus(t, status, http.StatusBadRequest, env)
	if env.Code != "VALIDATION_ERROR" {
		t.Fatalf("code %q, want VALIDATION_ERROR", env.Code)
	}
}

// Two-factor flow: challenge marker, then full credentials plus code.
func TestTwoFactorLoginFlow(t *testing.T) {
	user := seedUser(t, "u1", "a@x.com", "Passw0rd!", domain.RoleUser)
	user.TOTPEnabled = true
	user.TOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	app := newTestApp(t, user)

	status, env := app.request(t, http.MethodPost, "/v1/auth/login", "", loginBody("a@x.com", "Passw0rd!"))
	mustStatus(t, status, http.StatusOK, env)
	if !env.RequiresTwoFactor {
		t.Fatal("expected requiresTwoFactor marker")
	}
	if len(env.Data) != 0 {
		t.Fatalf("challenge response must not carry tokens: %s", env.Data)
	}

	code, err := totp.GenerateCode(user.TOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	body := fmt.Sprintf(`{"email":"a@x.com","password":"Passw0rd!","totpCode":%q}`, code)
	status, env = app.request(t, http.MethodPost, "/v1/auth/login/2fa", "", body)
	mustStatus(t, status, http.StatusOK, env)
	pair := decodeTokenPair(t, env.Data)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}

	status, env = app.request(t, http.MethodPost, "/v1/auth/login/2fa", "",
		`{"email":"a@x.com","password":"Passw0rd!","totpCode":"000000"}`)
	mustStatus(t, status, http.StatusUnauthorized, env)
	if env.Code != "INVALID_TOTP" {
		t.Fatalf("code %q, want INVALID_TOTP", env.Code)
	}
}

// Rotation scenario: refresh succeeds once, replay fails with TOKEN_REVOKED,
// and the original access token keeps working until natural expiry.
func TestRefreshRotationScenario(t *testing.T) {
	app := newTestApp(t, seedUser(t, "u1", "a@x.com", "Passw0rd!", domain.RoleUser))

	status, env := app.request(t, http.MethodPost, "/v1/auth/login", "", loginBody("a@x.com", "Passw0rd!"))
	mustStatus(t, status, http.StatusOK, env)
	first := decodeTokenPair(t, env.Data)

	refreshBody := fmt.Sprintf(`{"refreshToken":%q}`, first.RefreshToken)
	status, env = app.request(t, http.MethodPost, "/v1/auth/refresh", "", refreshBody)
	mustStatus(t, status, http.StatusOK, env)
	second := decodeTokenPair(t, env.Data)
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh must rotate the token")
	}

	status, env = app.request(t, http.MethodPost, "/v1/auth/refresh", "", refreshBody)
	mustStatus(t, status, http.StatusUnauthorized, env)
	if env.Code != "TOKEN_REVOKED" {
		t.Fatalf("replay code %q, want TOKEN_REVOKED", env.Code)
	}

	// Access tokens are not revoked by refresh.
	status, env = app.request(t, http.MethodGet, "/v1/auth/me", first.AccessToken, "")
	mustStatus(t, status, http.StatusOK, env)
}

func TestRefreshRejectsInvalidToken(t *testing.T) {
	app := newTestApp(t, seedUser(t, "u1", "a@x.com", "Passw0rd!", domain.RoleUser))

	status, env := app.request(t, http.MethodPost, "/v1/auth/refresh", "", `{"refreshToken":"garbage"}`)
	mustStatus(t, status, http.StatusUnauthorized, env)
	if env.Code != "INVALID_REFRESH_TOKEN" {
		t.Fatalf("code %q, want INVALID_REFRESH_TOKEN", env.Code)
	}
}

func TestLogoutFlow(t *testing.T) {
	app := newTestApp(t, seedUser(t, "u1", "a@x.com", "Passw0rd!", domain.RoleUser))

	status, env := app.request(t, http.MethodPost, "/v1/auth/login", "", loginBody("a@x.com", "Passw0rd!"))
	mustStatus(t, status, http.StatusOK, env)
	pair := decodeTokenPair(t, env.Data)

	body := fmt.Sprintf(`{"refreshToken":%q}`, pair.RefreshToken)
	status, env = app.request(t, http.MethodPost, "/v1/auth/logout", pair.AccessToken, body)
	mustStatus(t, status, http.StatusOK, env)

	// The refresh side is dead.
	status, env = app.request(t, http.MethodPost, "/v1/auth/refresh", "", body)
	mustStatus(t, status, http.StatusUnauthorized, env)
	if env.Code != "TOKEN_REVOKED" {
		t.Fatalf("code %q, want TOKEN_REVOKED", env.Code)
	}

	// The access token survives logout until it expires on its own.
	status, env = app.request(t, http.MethodGet, "/v1/auth/me", pair.AccessToken, "")
	mustStatus(t, status, http.StatusOK, env)

	// Logout requires authentication.
	status, env = app.request(t, http.MethodPost, "/v1/auth/logout", "", body)
	mustStatus(t, status, http.StatusUnauthorized, env)
	if env.Code != "TOKEN_REQUIRED" {
		t.Fatalf("code %q, want TOKEN_REQUIRED", env.Code)
	}
}

func TestTOTPEndpoints(t *testing.T) {
	app := newTestApp(t, seedUser(t, "u1", "a@x.com", "Passw0rd!", domain.RoleUser))

	access, err := app.tokens.IssueAccess("u1", "a@x.com", "user")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	status, env := app.request(t, http.MethodPost, "/v1/auth/2fa/setup", access, "")
	mustStatus(t, status, http.StatusOK, env)

	var setup struct {
		Secret string `json:"secret"`
		QRCode string `json:"qrCode"`
	}
	if err := json.Unmarshal(env.Data, &setup); err != nil {
		t.Fatalf("decode setup: %v", err)
	}
	if setup.Secret == "" || setup.QRCode == "" {
		t.Fatalf("incomplete setup payload: %+v", setup)
	}

	// Enabling with a wrong code is a 400-class state failure here.
	status, env = app.request(t, http.MethodPost, "/v1/auth/2fa/enable", access, `{"totpCode":"000000"}`)
	mustStatus(t, status, http.StatusBadRequest, env)
	if env.Code != "INVALID_TOTP" {
		t.Fatalf("code %q, want INVALID_TOTP", env.Code)
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	status, env = app.request(t, http.MethodPost, "/v1/auth/2fa/enable", access, fmt.Sprintf(`{"totpCode":%q}`, code))
	mustStatus(t, status, http.StatusOK, env)

	status, env = app.request(t, http.MethodPost, "/v1/auth/2fa/setup", access, "")
	mustStatus(t, status, http.StatusBadRequest, env)
	if env.Code != "TOTP_ALREADY_ENABLED" {
		t.Fatalf("code %q, want TOTP_ALREADY_ENABLED", env.Code)
	}

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	disableBody := fmt.Sprintf(`{"password":"Passw0rd!","totpCode":%q}`, code)
	status, env = app.request(t, http.MethodPost, "/v1/auth/2fa/disable", access, disableBody)
	mustStatus(t, status, http.StatusOK, env)

	status, env = app.request(t, http.MethodPost, "/v1/auth/2fa/disable", access, disableBody)
	mustStatus(t, status, http.StatusBadRequest, env)
	if env.Code != "TOTP_NOT_ENABLED" {
		t.Fatalf("code %q, want TOTP_NOT_ENABLED", env.Code)
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	app := newTestApp(t, seedUser(t, "u1", "a@x.com", "Passw0rd!", domain.RoleUser))

	access, err := app.tokens.IssueAccess("u1", "a@x.com", "user")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	status, env := app.request(t, http.MethodPost, "/v1/auth/password/change", access,
		`{"currentPassword":"wrong","newPassword":"NewPass1!"}`)
	mustStatus(t, status, http.StatusUnauthorized, env)
	if env.Code != "INVALID_PASSWORD" {
		t.Fatalf("code %q, want INVALID_PASSWORD", env.Code)
	}

	status, env = app.request(t, http.MethodPost, "/v1/auth/password/change", access,
		`{"currentPassword":"Passw0rd!","newPassword":"NewPass1!"}`)
	mustStatus(t, status, http.StatusOK, env)

	status, env = app.request(t, http.MethodPost, "/v1/auth/login", "", loginBody("a@x.com", "NewPass1!"))
	mustStatus(t, status, http.StatusOK, env)
}
