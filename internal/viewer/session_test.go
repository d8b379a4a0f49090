package viewer

import (
	"errors"
	"testing"
	"time"

	"quotely/api/internal/auth"
)

var sessionSecret = []byte("test-secret")

func TestIssueAndVerifySession(t *testing.T) {
	session, err := IssueSession(sessionSecret, "tok-abc", "viewer@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if session.ShareToken != "tok-abc" {
		t.Errorf("ShareToken = %q", session.ShareToken)
	}

	verified, err := VerifySession(sessionSecret, session.Token, "tok-abc")
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if !verified.ValidFor("tok-abc", time.Now()) {
		t.Error("verified session should cover its share token")
	}
}

func TestVerifySessionWrongShareToken(t *testing.T) {
	session, err := IssueSession(sessionSecret, "tok-abc", "viewer@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if _, err := VerifySession(sessionSecret, session.Token, "tok-other"); !errors.Is(err, ErrSessionMismatch) {
		t.Errorf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestVerifySessionExpired(t *testing.T) {
	session, err := IssueSession(sessionSecret, "tok-abc", "viewer@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if _, err := VerifySession(sessionSecret, session.Token, "tok-abc"); !errors.Is(err, auth.ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifySessionRejectsOwnerToken(t *testing.T) {
	token, err := auth.IssueToken(sessionSecret, auth.Claims{
		Sub:  "tok-abc",
		Name: "Owner",
		Role: "owner",
		JTI:  "jti-1",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := VerifySession(sessionSecret, token, "tok-abc"); !errors.Is(err, ErrSessionMismatch) {
		t.Errorf("owner tokens must not pass as viewer sessions, got %v", err)
	}
}
