// Package auth handles OAuth2 token management and persistence.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// ErrTokenNotSet indicates no OAuth token is available.
var ErrTokenNotSet = errors.New("no token defined")

// ErrInvalidState is returned for an unknown, reused or expired OAuth state.
var ErrInvalidState = errors.New("invalid or expired state parameter")

const stateTTL = 5 * time.Minute

// NewConfig builds the Google OAuth2 config for read-only Gmail access. Drafts are never modified.
func NewConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// Token manages OAuth2 tokens with thread-safe operations.
type Token struct {
	mu          sync.RWMutex
	cfg         *oauth2.Config
	token       *oauth2.Token
	persistPath string
	stateStore  map[string]time.Time
	logger      *slog.Logger
	now         func() time.Time
}

type TokenOption func(*Token)

func WithLogger(l *slog.Logger) TokenOption {
	return func(t *Token) { t.logger = l }
}

// WithClock replaces time.Now for state expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(t *Token) { t.now = now }
}

// NewToken creates a Token manager, loading from disk if path provided.
func NewToken(cfg *oauth2.Config, persistPath string, opts ...TokenOption) (*Token, error) {
	t := &Token{
		cfg:         cfg,
		persistPath: persistPath,
		stateStore:  make(map[string]time.Time),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if persistPath == "" {
		return t, nil
	}

	f, err := os.Open(persistPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.logger.Info("token file does not exist yet, it is created on persist", "path", persistPath)

			return t, nil
		}

		return nil, fmt.Errorf("os.Open failed: %w", err)
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("json.NewDecoder.Decode failed: %w", err)
	}
	t.token = token

	return t, nil
}

// RedirectURL generates the OAuth2 authorization URL with a secure random state.
func (t *Token) RedirectURL() (string, error) {
	state, err := t.generateState()
	if err != nil {
		return "", fmt.Errorf("generateState failed: %w", err)
	}

	return t.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (t *Token) generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read failed: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.stateStore[state] = now.Add(stateTTL)

	for s, exp := range t.stateStore {
		if exp.Before(now) {
			delete(t.stateStore, s)
		}
	}

	return state, nil
}

func (t *Token) validateState(state string) bool {
	if state == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, exists := t.stateStore[state]
	if !exists {
		return false
	}

	delete(t.stateStore, state)

	return !t.now().After(expiry)
}

// AuthorizeCode exchanges an authorization code for an access token after validating state.
func (t *Token) AuthorizeCode(ctx context.Context, code string, state string) error {
	if !t.validateState(state) {
		return ErrInvalidState
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tok, err := t.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("cfg.Exchange failed: %w", err)
	}

	t.token = tok

	return nil
}

// OAuthToken returns the current OAuth2 token.
func (t *Token) OAuthToken() (*oauth2.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.token == nil {
		return nil, ErrTokenNotSet
	}

	return t.token, nil
}

// Persist saves the token to disk.
func (t *Token) Persist() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.persistPath == "" || t.token == nil {
		return nil
	}

	f, err := os.OpenFile(t.persistPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("os.OpenFile failed: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(t.token); err != nil {
		return fmt.Errorf("json.NewEncoder.Encode failed: %w", err)
	}

	return nil
}
