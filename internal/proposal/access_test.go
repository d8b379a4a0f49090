package proposal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResolveOwnerBypassParameterWinsOverMismatchedUser(t *testing.T) {
	// The bypass parameter takes priority even when the authenticated user
	// does not own the quote.
	resolver := NewResolver(func(ctx context.Context, token string) (string, error) {
		return "someone-else", nil
	})

	decision := resolver.Resolve(context.Background(), AccessRequest{
		ShareToken:  "abc123",
		OwnerBypass: true,
		UserID:      "u1",
	})
	if decision != DecisionOwner {
		t.Fatalf("decision = %s, want owner", decision)
	}
}

func TestResolveAuthenticatedOwner(t *testing.T) {
	resolver := NewResolver(func(ctx context.Context, token string) (string, error) {
		if token != "abc123" {
			t.Errorf("lookup token = %q", token)
		}
		return "u1", nil
	})

	if d := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123", UserID: "u1"}); d != DecisionOwner {
		t.Fatalf("decision = %s, want owner", d)
	}
	if d := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123", UserID: "u2"}); d != DecisionChallenge {
		t.Fatalf("decision = %s, want challenge for non-owner", d)
	}
}

func TestResolveKnownOwnerSkipsLookup(t *testing.T) {
	lookups := 0
	resolver := NewResolver(func(ctx context.Context, token string) (string, error) {
		lookups++
		return "u1", nil
	})

	if d := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123", UserID: "u1", OwnerID: "u1"}); d != DecisionOwner {
		t.Fatalf("decision = %s, want owner", d)
	}
	if lookups != 0 {
		t.Fatalf("lookup ran %d times, the caller already supplied the owner", lookups)
	}

	if d := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123", UserID: "u2", OwnerID: "u1"}); d != DecisionChallenge {
		t.Fatalf("decision = %s, want challenge for non-owner", d)
	}
}

func TestResolveOwnershipErrorFailsClosed(t *testing.T) {
	resolver := NewResolver(func(ctx context.Context, token string) (string, error) {
		return "", errors.New("store down")
	})

	decision := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123", UserID: "u1"})
	if decision != DecisionChallenge {
		t.Fatalf("decision = %s, ownership errors must never bypass the challenge", decision)
	}
}

func TestResolveViewerSession(t *testing.T) {
	resolver := NewResolver(nil)

	valid := &ViewerSession{Token: "vs1", ShareToken: "abc123", ExpiresAt: time.Now().Add(time.Hour)}
	if d := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123", Session: valid}); d != DecisionViewer {
		t.Fatalf("decision = %s, want viewer", d)
	}

	expired := &ViewerSession{Token: "vs1", ShareToken: "abc123", ExpiresAt: time.Now().Add(-time.Minute)}
	if d := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123", Session: expired}); d != DecisionChallenge {
		t.Fatalf("decision = %s, want challenge for expired session", d)
	}

	// A session bound to a different share token must not admit the viewer.
	other := &ViewerSession{Token: "vs1", ShareToken: "other", ExpiresAt: time.Now().Add(time.Hour)}
	if d := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123", Session: other}); d != DecisionChallenge {
		t.Fatalf("decision = %s, want challenge for mismatched token", d)
	}
}

func TestResolveAnonymousWithoutSession(t *testing.T) {
	resolver := NewResolver(nil)
	if d := resolver.Resolve(context.Background(), AccessRequest{ShareToken: "abc123"}); d != DecisionChallenge {
		t.Fatalf("decision = %s, want challenge", d)
	}
}
