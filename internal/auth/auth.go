// Package auth handles the OAuth token hand-off and the stored session.
//
// The browser round trip is external: Begin produces the authorize URL and a
// one-shot result channel, and whoever receives the custom-scheme callback
// passes it to Complete.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
)

const (
	KeyAccessToken = "accessToken"
	KeyUsername    = "username"
)

var (
	ErrInvalidCallback = errors.New("invalid OAuth callback")
	ErrMissingToken    = errors.New("no access token received")
	ErrCredentialSave  = errors.New("failed to save credentials")
	ErrNoFlow          = errors.New("no login in progress")
)

// CredentialStore persists credentials by logical key. Load returns "" with
// a nil error when the key is absent.
type CredentialStore interface {
	SaveCredential(key, value string) error
	LoadCredential(key string) (string, error)
	ClearCredentials() error
}

type Config struct {
	ClientID     string
	RedirectURI  string
	AuthorizeURL string
}

// BuildAuthorizeURL builds the URL the user opens to grant access.
func (c Config) BuildAuthorizeURL() (string, error) {
	if c.ClientID == "" {
		return "", fmt.Errorf("client id required")
	}
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}
	q := u.Query()
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("response_type", "token")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type Session struct {
	AccessToken string
	Username    string
}

// ParseCallback extracts the session from the redirect URL. The service puts
// both values in the query string.
func ParseCallback(raw string) (Session, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return Session{}, ErrInvalidCallback
	}
	q := u.Query()
	s := Session{
		AccessToken: q.Get("access_token"),
		Username:    q.Get("username"),
	}
	if s.AccessToken == "" || s.Username == "" {
		return Session{}, ErrMissingToken
	}
	return s, nil
}

// Result is delivered exactly once per login flow.
type Result struct {
	Username string
	Err      error
}

type flow struct {
	once   sync.Once
	result chan Result
}

func (f *flow) resolve(r Result) {
	f.once.Do(func() {
		f.result <- r
		close(f.result)
	})
}

// Authenticator owns the login state. It never caches the token; Token reads
// the credential store on every call.
type Authenticator struct {
	cfg    Config
	creds  CredentialStore
	logger *slog.Logger

	mu             sync.Mutex
	authenticated  bool
	authenticating bool
	username       string
	lastErr        error
	pending        *flow
}

func NewAuthenticator(cfg Config, creds CredentialStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Authenticator{cfg: cfg, creds: creds, logger: logger}
	if tok, err := creds.LoadCredential(KeyAccessToken); err == nil && tok != "" {
		a.authenticated = true
		a.username, _ = creds.LoadCredential(KeyUsername)
	}
	return a
}

// Begin starts a login flow. A flow already in progress is superseded and
// resolved with ErrNoFlow.
func (a *Authenticator) Begin() (string, <-chan Result, error) {
	u, err := a.cfg.BuildAuthorizeURL()
	if err != nil {
		return "", nil, err
	}

	a.mu.Lock()
	prev := a.pending
	f := &flow{result: make(chan Result, 1)}
	a.pending = f
	a.authenticating = true
	a.lastErr = nil
	a.mu.Unlock()

	if prev != nil {
		prev.resolve(Result{Err: ErrNoFlow})
	}
	return u, f.result, nil
}

// Complete consumes the callback URL for the pending flow. Failures are
// terminal for the flow and nothing is persisted.
func (a *Authenticator) Complete(callbackURL string) error {
	a.mu.Lock()
	f := a.pending
	a.pending = nil
	a.mu.Unlock()
	if f == nil {
		return ErrNoFlow
	}

	err := a.complete(callbackURL)
	if err != nil {
		f.resolve(Result{Err: err})
		return err
	}
	f.resolve(Result{Username: a.Username()})
	return nil
}

func (a *Authenticator) complete(callbackURL string) error {
	sess, err := ParseCallback(callbackURL)
	if err != nil {
		a.fail(err)
		return err
	}

	if err := a.creds.SaveCredential(KeyAccessToken, sess.AccessToken); err != nil {
		a.logger.Error("save access token", "err", err)
		a.fail(ErrCredentialSave)
		return fmt.Errorf("%w: %v", ErrCredentialSave, err)
	}
	if err := a.creds.SaveCredential(KeyUsername, sess.Username); err != nil {
		a.logger.Error("save username", "err", err)
		if cerr := a.creds.ClearCredentials(); cerr != nil {
			a.logger.Error("roll back credentials", "err", cerr)
		}
		a.fail(ErrCredentialSave)
		return fmt.Errorf("%w: %v", ErrCredentialSave, err)
	}

	a.mu.Lock()
	a.username = sess.Username
	a.authenticated = true
	a.authenticating = false
	a.mu.Unlock()
	a.logger.Info("login complete", "username", sess.Username)
	return nil
}

func (a *Authenticator) fail(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.authenticating = false
	a.mu.Unlock()
	a.logger.Warn("login failed", "err", err)
}

// Cancel abandons the pending flow, if any.
func (a *Authenticator) Cancel() {
	a.mu.Lock()
	f := a.pending
	a.pending = nil
	a.authenticating = false
	a.mu.Unlock()
	if f != nil {
		f.resolve(Result{Err: ErrNoFlow})
	}
}

func (a *Authenticator) Logout() error {
	a.mu.Lock()
	a.authenticated = false
	a.username = ""
	a.mu.Unlock()
	if err := a.creds.ClearCredentials(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Token implements the engine's token source.
func (a *Authenticator) Token() (string, bool) {
	tok, err := a.creds.LoadCredential(KeyAccessToken)
	if err != nil || tok == "" {
		return "", false
	}
	return tok, true
}

func (a *Authenticator) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated
}

func (a *Authenticator) Authenticating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticating
}

func (a *Authenticator) Username() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.username
}

func (a *Authenticator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}
