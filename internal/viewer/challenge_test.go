package viewer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupChallengeStore(t *testing.T) (*ChallengeStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store := NewChallengeStoreWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}))
	return store, s
}

func TestCreateAndVerifyChallenge(t *testing.T) {
	store, s := setupChallengeStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	ch, err := store.Create(ctx, "tok-abc", "Viewer@Example.COM")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(ch.Code) != 6 {
		t.Errorf("expected 6-digit code, got %q", ch.Code)
	}
	if ch.Email != "viewer@example.com" {
		t.Errorf("email not normalized: %q", ch.Email)
	}

	email, err := store.Verify(ctx, ch.ID, "tok-abc", ch.Code)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if email != "viewer@example.com" {
		t.Errorf("expected verified email, got %q", email)
	}

	// Challenge is consumed; a replay must not pass.
	if _, err := store.Verify(ctx, ch.ID, "tok-abc", ch.Code); !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("expected ErrInvalidChallenge on replay, got %v", err)
	}
}

func TestVerifyWrongCode(t *testing.T) {
	store, s := setupChallengeStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	ch, err := store.Create(ctx, "tok-abc", "viewer@example.com")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := store.Verify(ctx, ch.ID, "tok-abc", "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	// The right code still works after one miss.
	if _, err := store.Verify(ctx, ch.ID, "tok-abc", ch.Code); err != nil {
		t.Errorf("Verify after one miss failed: %v", err)
	}
}

func TestVerifyAttemptsExhausted(t *testing.T) {
	store, s := setupChallengeStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	ch, err := store.Create(ctx, "tok-abc", "viewer@example.com")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := store.Verify(ctx, ch.ID, "tok-abc", "000000"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i, err)
		}
	}

	// Exhausted: even the correct code is rejected now.
	if _, err := store.Verify(ctx, ch.ID, "tok-abc", ch.Code); !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("expected ErrInvalidChallenge after exhaustion, got %v", err)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	store, s := setupChallengeStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	ch, err := store.Create(ctx, "tok-abc", "viewer@example.com")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s.FastForward(6 * time.Minute)

	if _, err := store.Verify(ctx, ch.ID, "tok-abc", ch.Code); !errors.Is(err, ErrInvalidChallenge) && !errors.Is(err, ErrExpiredCode) {
		t.Errorf("expected expiry error, got %v", err)
	}
}

func TestChallengeBoundToShareToken(t *testing.T) {
	store, s := setupChallengeStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	ch, err := store.Create(ctx, "tok-abc", "viewer@example.com")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := store.Verify(ctx, ch.ID, "tok-other", ch.Code); !errors.Is(err, ErrInvalidChallenge) {
		t.Errorf("code for one proposal must not unlock another, got %v", err)
	}
}

func TestResendRateLimited(t *testing.T) {
	store, s := setupChallengeStore(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := store.Create(ctx, "tok-abc", "viewer@example.com"); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := store.Create(ctx, "tok-abc", "viewer@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// A different proposal is a separate window.
	if _, err := store.Create(ctx, "tok-other", "viewer@example.com"); err != nil {
		t.Errorf("Create for different token failed: %v", err)
	}

	s.FastForward(61 * time.Second)
	if _, err := store.Create(ctx, "tok-abc", "viewer@example.com"); err != nil {
		t.Errorf("Create after resend window failed: %v", err)
	}
}

func TestCreateRejectsBadEmail(t *testing.T) {
	store, s := setupChallengeStore(t)
	defer store.Close()
	defer s.Close()

	if _, err := store.Create(context.Background(), "tok-abc", "not-an-email"); err == nil {
		t.Error("expected error for invalid email")
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"viewer@example.com": "v***r@example.com",
		"ab@example.com":     "a***@example.com",
		"a@example.com":      "a***@example.com",
		"bad-address":        "bad-address",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
