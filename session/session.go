// Package session provides bearer tokens for the GO-Panel API and chat
// transport. Tokens come from the external auth provider; this package only
// caches and refreshes them.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

// ErrNoSession is returned when no user is signed in. Callers must treat it
// as fatal for the attempted action.
var ErrNoSession = errors.New("no active session")

// TokenSource hands out a current bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token source, useful for tests and service credentials.
type Static string

// Token returns the fixed token, or ErrNoSession when empty.
func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoSession
	}
	return string(s), nil
}

// refreshSkew is how far before expiry a cached token is considered stale.
const refreshSkew = time.Minute

// Client authenticates against the auth provider's token endpoint and keeps
// the access token fresh, refreshing it ahead of expiry.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewClient creates a session client for the given auth endpoint. The logger
// may be nil, in which case the standard logrus logger is used.
func NewClient(baseURL, apiKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SignIn performs a password-grant sign-in and caches the resulting session.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	body := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}
	resp, err := c.grant(ctx, "password", body)
	if err != nil {
		return err
	}
	c.store(resp)
	c.logger.WithField("email", email).Debug("session established")
	return nil
}

// SignOut drops the cached session. Subsequent Token calls fail with
// ErrNoSession until the next SignIn.
func (c *Client) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.refreshToken = ""
	c.expiresAt = time.Time{}
}

// Token returns the cached access token, refreshing it first when it is
// within the refresh skew of expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.accessToken
	refresh := c.refreshToken
	fresh := token != "" && time.Until(c.expiresAt) > refreshSkew
	c.mu.Unlock()

	if fresh {
		return token, nil
	}
	if refresh == "" {
		return "", ErrNoSession
	}

	body := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: refresh}
	resp, err := c.grant(ctx, "refresh_token", body)
	if err != nil {
		return "", fmt.Errorf("refresh session: %w", err)
	}
	c.store(resp)
	return resp.AccessToken, nil
}

func (c *Client) grant(ctx context.Context, grantType string, body any) (tokenResponse, error) {
	var tr tokenResponse
	payload, err := sonic.ConfigStd.Marshal(body)
	if err != nil {
		return tr, err
	}
	url := fmt.Sprintf("%s/auth/v1/token?grant_type=%s", c.baseURL, grantType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return tr, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return tr, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			c.logger.WithField("status", resp.StatusCode).Debug("auth grant rejected")
			return tr, fmt.Errorf("%w: %s", ErrNoSession, string(msg))
		}
		return tr, fmt.Errorf("auth endpoint returned %d: %s", resp.StatusCode, string(msg))
	}

	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return tr, err
	}
	if tr.AccessToken == "" {
		return tr, errors.New("auth endpoint returned no access token")
	}
	return tr, nil
}

func (c *Client) store(tr tokenResponse) {
	exp := expiryOf(tr)
	c.mu.Lock()
	c.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		c.refreshToken = tr.RefreshToken
	}
	c.expiresAt = exp
	c.mu.Unlock()
}

// expiryOf prefers the endpoint's expires_in and falls back to the token's
// own exp claim. The claim is read without signature verification; the server
// remains the authority on validity.
func expiryOf(tr tokenResponse) time.Time {
	if tr.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, ok := claims["exp"].(float64); ok {
			return time.Unix(int64(exp), 0)
		}
	}
	// Unknown expiry: force a refresh on the next Token call.
	return time.Time{}
}
