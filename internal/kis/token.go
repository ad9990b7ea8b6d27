package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"quotegateway/internal/fieldscan"
)

const (
	// tokenExpiryMargin makes a token that is about to expire count as
	// stale, so it is refreshed before an upstream call can see it die.
	tokenExpiryMargin = 30 * time.Second
	// defaultTokenLifetime covers providers that omit expires_in.
	defaultTokenLifetime = 23 * time.Hour
)

type tokenState struct {
	accessToken string
	expiresAt   time.Time
}

func (t tokenState) valid(now time.Time) bool {
	return t.accessToken != "" && t.expiresAt.After(now)
}

// Token returns a bearer token, refreshing it if stale. The unexpired
// path takes only a read lock; refresh runs in an exclusive critical
// section with a re-check so concurrent callers racing on expiry trigger
// a single grant request. An empty return means the client is not
// configured or the grant failed; that is a signal, not an error.
func (c *Client) Token(ctx context.Context) string {
	if !c.Configured() {
		return ""
	}

	c.tokenMu.RLock()
	if c.token.valid(time.Now()) {
		token := c.token.accessToken
		c.tokenMu.RUnlock()
		return token
	}
	c.tokenMu.RUnlock()

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token.valid(time.Now()) {
		return c.token.accessToken
	}
	return c.refreshTokenLocked(ctx)
}

// InvalidateToken clears the token state unconditionally, forcing the
// next Token call to perform a real refresh. Called after an
// authenticated request comes back 401/403.
func (c *Client) InvalidateToken() {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token = tokenState{}
}

func (c *Client) refreshTokenLocked(ctx context.Context) string {
	payload := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.cfg.AppKey,
		"appsecret":  c.cfg.AppSecret,
	}
	body, _ := json.Marshal(payload)

	reqCtx, cancel := context.WithTimeout(ctx, quoteTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+c.cfg.TokenPath, bytes.NewReader(body))
	if err != nil {
		c.log.Error().Err(err).Msg("token request build failed")
		return ""
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		c.log.Error().Err(err).Msg("token request failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		summary := ""
		if data, derr := decodeBody(resp.Body); derr == nil {
			summary = errorSummary(data)
		}
		c.log.Error().Int("status", resp.StatusCode).Str("message", summary).Msg("token request rejected")
		return ""
	}

	data, err := decodeBody(resp.Body)
	if err != nil {
		c.log.Error().Err(err).Msg("token response unparsable")
		return ""
	}

	accessToken := fieldscan.Text(fieldscan.Find(data, []string{"access_token", "accessToken"}))
	if accessToken == "" {
		c.log.Error().Msg("token response missing access_token")
		return ""
	}
	lifetime := defaultTokenLifetime
	if v := fieldscan.Number(fieldscan.Find(data, []string{"expires_in", "expiresIn"})); v != nil && *v > 0 {
		lifetime = time.Duration(*v * float64(time.Second))
	}

	c.token = tokenState{
		accessToken: accessToken,
		expiresAt:   time.Now().Add(lifetime - tokenExpiryMargin),
	}
	return accessToken
}
