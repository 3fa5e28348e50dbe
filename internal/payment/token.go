package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/logx"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// App keys are issued per environment and carry its tag as a prefix.
var appKeyPrefixes = []string{"SAND_", "PROD_"}

type Credentials struct {
	AppID  string
	AppKey string
}

// Validate rejects absent credentials and keys without an environment tag.
func (c Credentials) Validate() error {
	if c.AppID == "" || c.AppKey == "" {
		return apperr.Configuration("missing payment gateway credentials")
	}
	for _, p := range appKeyPrefixes {
		if strings.HasPrefix(c.AppKey, p) {
			return nil
		}
	}
	return apperr.Configuration("app key must start with SAND_ or PROD_")
}

type tokenResponse struct {
	Data struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expiresIn"` // seconds
		Scope     string `json:"scope"`
		AppID     string `json:"appId"`
	} `json:"data"`
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
}

// TokenProvider issues gateway bearer tokens. When Cache is set, tokens are
// reused until shortly before they expire.
type TokenProvider struct {
	BaseURL string
	Creds   Credentials
	HTTP    *http.Client
	Cache   redis.Cmdable // optional
	Log     *slog.Logger
}

func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	if err := p.Creds.Validate(); err != nil {
		return "", err
	}

	key := fmt.Sprintf(redisx.KeyGatewayToken, p.Creds.AppID)
	if p.Cache != nil {
		tok, ok, err := redisx.GetString(ctx, p.Cache, key)
		switch {
		case err != nil:
			p.log().Warn("token cache read failed", "err", err)
		case ok:
			metrics.TokenCacheTotal.WithLabelValues("hit").Inc()
			return tok, nil
		}
		metrics.TokenCacheTotal.WithLabelValues("miss").Inc()
	}

	tok, ttl, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}

	if p.Cache != nil && ttl > 0 {
		if err := p.Cache.Set(ctx, key, tok, ttl).Err(); err != nil {
			p.log().Warn("token cache write failed", "err", err)
		}
	}
	return tok, nil
}

// Invalidate drops the cached token, e.g. after the gateway rejected it.
func (p *TokenProvider) Invalidate(ctx context.Context) {
	if p.Cache == nil {
		return
	}
	if err := p.Cache.Del(ctx, fmt.Sprintf(redisx.KeyGatewayToken, p.Creds.AppID)).Err(); err != nil {
		p.log().Warn("token cache invalidate failed", "err", err)
	}
}

func (p *TokenProvider) fetch(ctx context.Context) (string, time.Duration, error) {
	body, _ := json.Marshal(map[string]string{"appId": p.Creds.AppID, "appKey": p.Creds.AppKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", 0, apperr.E(apperr.KindAuthentication, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.HTTP.Do(req)
	metrics.GatewayCallDuration.WithLabelValues("token").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", 0, apperr.E(apperr.KindAuthentication, "could not reach authentication service", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&tr)

	if resp.StatusCode/100 != 2 || decodeErr != nil || !tr.Success || tr.Data.Token == "" {
		msg := tr.ErrorMsg
		if msg == "" {
			msg = fmt.Sprintf("authentication failed (HTTP %d)", resp.StatusCode)
		}
		p.log().Error("gateway token request rejected",
			"status", resp.StatusCode, "app_id", p.Creds.AppID, "gateway_error", tr.ErrorMsg)
		return "", 0, apperr.E(apperr.KindAuthentication, msg, decodeErr)
	}

	ttl := time.Duration(tr.Data.ExpiresIn)*time.Second - redisx.TokenExpirySkew
	return tr.Data.Token, ttl, nil
}

func (p *TokenProvider) log() *slog.Logger {
	if p.Log == nil {
		return logx.Discard()
	}
	return p.Log
}
