package service

import (
	"os"
	"testing"
)

func TestIdentityTokenRoundTrip(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	InitJWT()

	id := NewPlayerID()
	token, err := GenerateIdentityToken(id)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	got, err := ParseIdentityToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("parsed id %q; want %q", got, id)
	}
}

func TestIdentityTokenRejectsGarbage(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	InitJWT()

	if _, err := ParseIdentityToken("not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}

	// token signed with a different secret
	jwtSecret = []byte("other-secret")
	token, err := GenerateIdentityToken("p1")
	if err != nil {
		t.Fatal(err)
	}
	jwtSecret = []byte("test-secret")
	if _, err := ParseIdentityToken(token); err == nil {
		t.Fatal("expected error for wrong signature")
	}
}

func TestNewPlayerIDUnique(t *testing.T) {
	a, b := NewPlayerID(), NewPlayerID()
	if a == b {
		t.Fatal("player ids must be unique")
	}
	if a == "" {
		t.Fatal("empty player id")
	}
}
