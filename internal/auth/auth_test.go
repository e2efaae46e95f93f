package auth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestGuard_CheckBasic(t *testing.T) {
	g, err := New("alice", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"correct credentials", "alice", "s3cret", true},
		{"wrong password", "alice", "wrong", false},
		{"wrong username", "bob", "s3cret", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.CheckBasic(context.Background(), tc.username, tc.password); got != tc.want {
				t.Fatalf("CheckBasic(%q, %q) = %v, want %v", tc.username, tc.password, got, tc.want)
			}
		})
	}
}

func TestGuard_CheckBasic_ConcurrentCallsCoalesce(t *testing.T) {
	g, err := New("alice", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]bool, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.CheckBasic(context.Background(), "alice", "s3cret")
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Fatalf("concurrent CheckBasic[%d] = false, want true", i)
		}
	}
}

func TestGuard_LoginAndCheckBearer(t *testing.T) {
	g, err := New("alice", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tok, ok := g.Login(context.Background(), "alice", "s3cret")
	if !ok || tok == "" {
		t.Fatalf("Login must succeed with correct credentials, got tok=%q ok=%v", tok, ok)
	}
	if !g.CheckBearer(tok) {
		t.Fatalf("freshly issued token must be accepted")
	}

	if _, ok := g.Login(context.Background(), "alice", "wrong"); ok {
		t.Fatalf("Login must fail with wrong password")
	}
}

func TestGuard_CheckBearer_ExpiredTokenIsPruned(t *testing.T) {
	// A negative lifetime means every issued token is already expired,
	// exercising the lazy-prune path without a real sleep.
	g, err := New("alice", "s3cret", -time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tok, ok := g.Login(context.Background(), "alice", "s3cret")
	if !ok {
		t.Fatalf("Login must succeed")
	}
	if g.CheckBearer(tok) {
		t.Fatalf("expired token must be rejected")
	}
	if g.CheckBearer(tok) {
		t.Fatalf("pruned token must stay rejected on a second check")
	}
}

func TestGuard_Rotate(t *testing.T) {
	g, err := New("alice", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tok, _ := g.Login(context.Background(), "alice", "s3cret")
	newTok, ok := g.Rotate(tok)
	if !ok || newTok == "" || newTok == tok {
		t.Fatalf("Rotate must return a distinct fresh token, got %q ok=%v", newTok, ok)
	}
	if g.CheckBearer(tok) {
		t.Fatalf("old token must be invalidated after Rotate")
	}
	if !g.CheckBearer(newTok) {
		t.Fatalf("new token must be valid after Rotate")
	}

	if _, ok := g.Rotate("no-such-token"); ok {
		t.Fatalf("Rotate must fail for an unknown token")
	}
}

func TestGuard_ChangePassword_InvalidatesAllTokens(t *testing.T) {
	g, err := New("alice", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tok, _ := g.Login(context.Background(), "alice", "s3cret")
	if err := g.ChangePassword("newpass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if g.CheckBearer(tok) {
		t.Fatalf("tokens issued before a password change must be invalidated")
	}
	if g.CheckBasic(context.Background(), "alice", "s3cret") {
		t.Fatalf("old password must no longer authenticate")
	}
	if !g.CheckBasic(context.Background(), "alice", "newpass") {
		t.Fatalf("new password must authenticate")
	}
}

func TestGuard_Reset_ReturnsWorkingPassword(t *testing.T) {
	g, err := New("alice", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pw, err := g.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if pw == "" {
		t.Fatalf("Reset must return a non-empty password")
	}
	if !g.CheckBasic(context.Background(), "alice", pw) {
		t.Fatalf("the password returned by Reset must authenticate")
	}
}
