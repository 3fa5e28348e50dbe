package catalog

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
)

const SignatureHeader = "sanity-webhook-signature"

// Sign returns the signature header value for body sent at unix-millisecond t.
func Sign(secret string, t int64, body []byte) string {
	ts := strconv.FormatInt(t, 10)
	return "t=" + ts + ",v1=" + digest(secret, ts, body)
}

func digest(secret, ts string, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(ts + "."))
	m.Write(body)
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

// VerifySignature checks a "t=<ms>,v1=<sig>" header against body.
func VerifySignature(header string, body []byte, secret string) error {
	if secret == "" {
		return apperr.Unauthorized("Invalid signature")
	}
	if header == "" {
		return apperr.Unauthorized("Missing signature header")
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil || sig == "" {
		return apperr.Unauthorized("Invalid signature")
	}
	if !hmac.Equal([]byte(sig), []byte(digest(secret, ts, body))) {
		return apperr.Unauthorized("Invalid signature")
	}
	return nil
}
