package security

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"regexp"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30

// totpCodePattern gates input before any cryptographic work happens.
var totpCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// TOTPEnrollment carries a freshly generated shared secret and the otpauth
// URI that authenticator apps consume via QR code.
type TOTPEnrollment struct {
	Secret string
	URI    string
}

// GenerateTOTPSecret creates a 32-byte secret (Base32, unpadded) labeled
// with issuer and account for provisioning.
func GenerateTOTPSecret(issuer, account string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		SecretSize:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return &TOTPEnrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// VerifyTOTPCode reports whether code is valid for secret at the given time,
// accepting codes up to window 30-second steps away to tolerate clock drift.
// Non-numeric or wrong-length input is rejected before hashing anything.
func VerifyTOTPCode(secret, code string, window uint, now time.Time) bool {
	if !totpCodePattern.MatchString(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      window,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// QRCodePNG renders an otpauth URI as a PNG data URL suitable for an <img>
// src attribute.
func QRCodePNG(uri string, size int) (string, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", fmt.Errorf("parse otpauth uri: %w", err)
	}

	img, err := key.Image(size, size)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
