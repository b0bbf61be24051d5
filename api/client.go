// Package api is the typed client for the GO-Panel task/board REST API.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"gopanel/session"
)

// ErrUnauthorized is returned when the API rejects the bearer token. The
// registered sign-out handler has already fired by the time callers see it.
var ErrUnauthorized = errors.New("unauthorized")

const maxErrorBody = 4 * 1024

// Client issues authenticated calls against the GO-Panel API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  session.TokenSource
	logger  *log.Logger

	mu      sync.Mutex
	signOut func()
}

// NewClient creates an API client rooted at baseURL (e.g. "https://host/api").
// The logger may be nil, in which case the standard logrus logger is used.
func NewClient(baseURL string, tokens session.TokenSource, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		logger:  logger,
	}
}

// OnUnauthorized registers the forced sign-out handler invoked on any 401
// response.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.signOut = fn
	c.mu.Unlock()
}

func (c *Client) unauthorized() {
	c.mu.Lock()
	fn := c.signOut
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// do performs one authenticated request. A nil out skips response decoding.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (err error) {
	metrics := newRequestMetrics(c.logger, method, path)
	status := 0
	defer func() {
		metrics.Log(status, err)
	}()

	authStart := time.Now()
	token, err := c.tokens.Token(ctx)
	metrics.ObserveAuth(time.Since(authStart))
	if err != nil {
		metrics.SetErrorStage("auth")
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reqBody io.Reader
	if body != nil {
		payload, merr := sonic.ConfigStd.Marshal(body)
		if merr != nil {
			metrics.SetErrorStage("encode_request")
			return merr
		}
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	sendStart := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveSend(time.Since(sendStart))
	if err != nil {
		metrics.SetErrorStage("transport")
		return err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode == http.StatusUnauthorized {
		metrics.SetErrorStage("unauthorized")
		c.unauthorized()
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		metrics.SetErrorStage("api")
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}

	decodeStart := time.Now()
	err = sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
	metrics.ObserveDecode(time.Since(decodeStart))
	if err != nil {
		metrics.SetErrorStage("decode_response")
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
