// Package auth implements tagcached's login/bearer-token guard (spec §6.2
// auth endpoints, §7 Unauthorized). Password hashing follows osakka-entitydb's
// src/api/auth_handler.go (bcrypt + crypto/rand session tokens); concurrent
// checks of the same username and password are coalesced through the teacher's
// internal/singleflight.Group, repurposed here from its original
// GetOrLoad-coalescing role to de-duplicate the bcrypt comparison, which is
// deliberately expensive.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/IvanBrykalov/tagcache/internal/singleflight"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Guard holds the single configured credential and the set of live bearer
// tokens. It is safe for concurrent use.
type Guard struct {
	mu       sync.RWMutex
	username string
	hash     []byte
	tokens   map[string]time.Time // token -> expiry

	lifetime time.Duration
	group    singleflight.Group[string, bool]
}

// New builds a Guard for username/password with the given token lifetime.
// password is hashed immediately with bcrypt's default cost.
func New(username, password string, lifetime time.Duration) (*Guard, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Guard{
		username: username,
		hash:     h,
		tokens:   make(map[string]time.Time),
		lifetime: lifetime,
	}, nil
}

// CheckBasic verifies a username/password pair (HTTP Basic auth, spec §6.2).
// Concurrent checks for the same username and password share one bcrypt
// comparison.
func (g *Guard) CheckBasic(ctx context.Context, username, password string) bool {
	g.mu.RLock()
	wantUser, hash := g.username, g.hash
	g.mu.RUnlock()

	if username != wantUser {
		return false
	}

	ok, _ := g.group.Do(ctx, username+"\x00"+password, func() (bool, error) {
		return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil, nil
	})
	return ok
}

// Login verifies credentials and, on success, issues a fresh bearer token
// (spec §6.2 POST /auth/login).
func (g *Guard) Login(ctx context.Context, username, password string) (string, bool) {
	if !g.CheckBasic(ctx, username, password) {
		return "", false
	}
	return g.issueToken(), true
}

func (g *Guard) issueToken() string {
	tok := uuid.New().String()
	g.mu.Lock()
	g.tokens[tok] = time.Now().Add(g.lifetime)
	g.mu.Unlock()
	return tok
}

// CheckBearer reports whether token is live (issued and not expired).
// Expired tokens are lazily pruned.
func (g *Guard) CheckBearer(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	exp, ok := g.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(g.tokens, token)
		return false
	}
	return true
}

// Rotate issues a new token for an already-authenticated caller, invalidating
// the old one (spec §6.2 POST /auth/rotate).
func (g *Guard) Rotate(oldToken string) (string, bool) {
	g.mu.Lock()
	if _, ok := g.tokens[oldToken]; !ok {
		g.mu.Unlock()
		return "", false
	}
	delete(g.tokens, oldToken)
	g.mu.Unlock()
	return g.issueToken(), true
}

// ChangePassword replaces the stored credential, invalidating every
// outstanding token (spec §6.2 POST /auth/change_password).
func (g *Guard) ChangePassword(newPassword string) error {
	h, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.hash = h
	g.tokens = make(map[string]time.Time)
	g.mu.Unlock()
	return nil
}

// Reset regenerates a random password for username, returning the plaintext
// exactly once (spec §6.2 POST /auth/reset). Every outstanding token is
// invalidated.
func (g *Guard) Reset() (string, error) {
	pw, err := randomPassword()
	if err != nil {
		return "", err
	}
	if err := g.ChangePassword(pw); err != nil {
		return "", err
	}
	return pw, nil
}

func randomPassword() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
