// Package auth gates requests behind a remote identity service and checks
// the assistant shared secret.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var ErrUnauthenticated = errors.New("auth: unauthenticated")

type Config struct {
	Enabled    bool
	VerifyURL  string
	LoginURL   string
	CookieName string
	Timeout    time.Duration
}

type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Anonymous is attached to requests when auth is disabled.
var Anonymous = Identity{ID: "anonymous"}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Token sources reported by TokenFrom.
const (
	SourceCookie = "cookie"
	SourceHeader = "header"
)

type Gate struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
}

type Option func(*Gate)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gate) { g.client = c }
}

func NewGate(cfg Config, logger *log.Logger, opts ...Option) *Gate {
	if cfg.CookieName == "" {
		cfg.CookieName = "auth_token"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	g := &Gate{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Enabled() bool { return g.cfg.Enabled }

// TokenFrom finds the session token in the cookie first, then in a bearer
// Authorization header.
func (g *Gate) TokenFrom(r *http.Request) (token, source string) {
	if c, err := r.Cookie(g.cfg.CookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), SourceCookie
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		if tok := strings.TrimSpace(h[7:]); tok != "" {
			return tok, SourceHeader
		}
	}
	return "", ""
}

// verifyResponse accepts either {"valid": bool, "user": {...}} or a bare
// identity object.
type verifyResponse struct {
	Valid *bool     `json:"valid"`
	User  *Identity `json:"user"`
	Identity
	Sub string `json:"sub"`
}

// Verify asks the identity service about token. Any transport failure or
// non-200 answer counts as unauthenticated.
func (g *Gate) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: no token", ErrUnauthenticated)
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.VerifyURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: verify: %w", ErrUnauthenticated, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Identity{}, fmt.Errorf("%w: verify status %d", ErrUnauthenticated, resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("%w: decode verify response: %w", ErrUnauthenticated, err)
	}
	if body.Valid != nil && !*body.Valid {
		return Identity{}, fmt.Errorf("%w: token rejected", ErrUnauthenticated)
	}
	id := body.Identity
	if body.User != nil {
		id = *body.User
	}
	if id.ID == "" {
		id.ID = body.Sub
	}
	if id.ID == "" {
		id.ID = id.Email
	}
	if id.ID == "" {
		return Identity{}, fmt.Errorf("%w: verify response has no identity", ErrUnauthenticated)
	}
	return id, nil
}

func (g *Gate) authenticate(r *http.Request) (Identity, error) {
	if !g.cfg.Enabled {
		return Anonymous, nil
	}
	token, _ := g.TokenFrom(r)
	id, err := g.Verify(r.Context(), token)
	if err != nil {
		g.logger.Debug("request not authenticated", "path", r.URL.Path, "err", err)
	}
	return id, err
}

// LoginURL returns the configured login URL with a redirect back to the
// current request.
func (g *Gate) LoginURL(r *http.Request) string {
	if g.cfg.LoginURL == "" {
		return ""
	}
	u, err := url.Parse(g.cfg.LoginURL)
	if err != nil {
		return g.cfg.LoginURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	q := u.Query()
	q.Set("redirect", scheme+"://"+r.Host+r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}

// RequireAPI answers unauthenticated callers with 401 and a JSON body
// carrying the login URL.
func (g *Gate) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":    "authentication required",
				"loginUrl": g.LoginURL(r),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequirePage redirects unauthenticated browsers to the login URL.
func (g *Gate) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.authenticate(r)
		if err != nil {
			if login := g.LoginURL(r); login != "" {
				http.Redirect(w, r, login, http.StatusFound)
				return
			}
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// CheckSecret compares the supplied secret in constant time. An empty
// expected secret rejects everything.
func CheckSecret(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
