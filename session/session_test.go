package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticToken(t *testing.T) {
	tok, err := Static("abc").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Fatalf("got (%q, %v)", tok, err)
	}
	if _, err := Static("").Token(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("empty static source returned %v, want ErrNoSession", err)
	}
}

func TestTokenWithoutSignIn(t *testing.T) {
	c := NewClient("http://localhost:0", "", nil)
	if _, err := c.Token(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("got %v, want ErrNoSession", err)
	}
}

func TestSignInThenToken(t *testing.T) {
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grants = append(grants, r.URL.Query().Get("grant_type"))
		if got := r.Header.Get("apikey"); got != "anon-key" {
			t.Errorf("missing apikey header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok-1",
			"refresh_token": "ref-1",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "anon-key", nil)
	if err := c.SignIn(context.Background(), "u@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	tok, err := c.Token(context.Background())
	if err != nil || tok != "tok-1" {
		t.Fatalf("got (%q, %v)", tok, err)
	}
	if len(grants) != 1 || grants[0] != "password" {
		t.Fatalf("unexpected grants: %v", grants)
	}
}

func TestTokenRefreshesWhenExpired(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		grant := r.URL.Query().Get("grant_type")
		token := "tok-initial"
		expires := int64(0) // unknown expiry forces refresh next time
		if grant == "refresh_token" {
			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.RefreshToken != "ref-1" {
				t.Errorf("unexpected refresh token %q", body.RefreshToken)
			}
			token = "tok-refreshed"
			expires = 3600
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  token,
			"refresh_token": "ref-1",
			"expires_in":    expires,
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", nil)
	if err := c.SignIn(context.Background(), "u@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	tok, err := c.Token(context.Background())
	if err != nil || tok != "tok-refreshed" {
		t.Fatalf("got (%q, %v)", tok, err)
	}
	// Second call serves the cached refreshed token.
	if tok, _ = c.Token(context.Background()); tok != "tok-refreshed" {
		t.Fatalf("cached token = %q", tok)
	}
	if calls != 2 {
		t.Fatalf("expected 2 auth calls, got %d", calls)
	}
}

func TestSignInRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", nil)
	if err := c.SignIn(context.Background(), "u@example.com", "wrong"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("got %v, want ErrNoSession", err)
	}
}

func TestSignOutDropsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok", "refresh_token": "ref", "expires_in": 3600,
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", nil)
	if err := c.SignIn(context.Background(), "u@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	c.SignOut()
	if _, err := c.Token(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("got %v, want ErrNoSession after sign out", err)
	}
}
