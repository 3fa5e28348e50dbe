package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
)

const SignatureHeader = "X-Tranzak-Signature"

// Authenticator verifies a webhook delivery before its body is parsed.
// Header names the request header the authenticator relies on.
type Authenticator interface {
	Header() string
	Authenticate(h http.Header, body []byte) error
}

var errUnauthorized = apperr.Unauthorized("Unauthorized")

// BearerAuth expects "Authorization: Bearer <Secret>". An empty Secret
// rejects every request.
type BearerAuth struct {
	Secret string
}

func (BearerAuth) Header() string { return "Authorization" }

func (a BearerAuth) Configured() bool { return a.Secret != "" }

func (a BearerAuth) Authenticate(h http.Header, _ []byte) error {
	if a.Secret == "" {
		return errUnauthorized
	}
	got, ok := strings.CutPrefix(h.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.Secret)) != 1 {
		return errUnauthorized
	}
	return nil
}

// SignatureAuth expects the hex HMAC-SHA256 of the raw body, keyed with
// Secret, in X-Tranzak-Signature.
type SignatureAuth struct {
	Secret string
}

func (SignatureAuth) Header() string { return SignatureHeader }

func (a SignatureAuth) Configured() bool { return a.Secret != "" }

func (a SignatureAuth) Authenticate(h http.Header, body []byte) error {
	if a.Secret == "" {
		return errUnauthorized
	}
	got, err := hex.DecodeString(strings.TrimSpace(h.Get(SignatureHeader)))
	if err != nil || len(got) == 0 {
		return errUnauthorized
	}
	if !hmac.Equal(got, Sign(a.Secret, body)) {
		return errUnauthorized
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(secret string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return m.Sum(nil)
}

// AnyAuth hands the request to the first configured authenticator whose
// header is present. No usable header at all is a rejection.
type AnyAuth []Authenticator

func (AnyAuth) Header() string { return "" }

func (a AnyAuth) Authenticate(h http.Header, body []byte) error {
	for _, au := range a {
		if c, ok := au.(interface{ Configured() bool }); ok && !c.Configured() {
			continue
		}
		if h.Get(au.Header()) != "" {
			return au.Authenticate(h, body)
		}
	}
	return errUnauthorized
}
