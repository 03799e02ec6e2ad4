package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestArgon2RoundTrip(t *testing.T) {
	hash, err := HashPasswordWithParams("s3cret-пароль", fastParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := VerifyPassword("s3cret-пароль", hash)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(correct) = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil || ok {
		t.Fatalf("VerifyPassword(wrong) = %v, %v", ok, err)
	}
	if NeedsRehash(hash) {
		t.Fatal("argon2id hash should not need a rehash")
	}
}

func TestHashesAreSalted(t *testing.T) {
	a, _ := HashPasswordWithParams("same", fastParams)
	b, _ := HashPasswordWithParams("same", fastParams)
	if a == b {
		t.Fatal("expected different hashes for the same password")
	}
}

func TestLegacyBcryptVerifies(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := VerifyPassword("old-password", string(legacy))
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(bcrypt correct) = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("nope", string(legacy))
	if err != nil || ok {
		t.Fatalf("VerifyPassword(bcrypt wrong) = %v, %v", ok, err)
	}
	if !NeedsRehash(string(legacy)) {
		t.Fatal("bcrypt hash should be flagged for rehash")
	}
}

func TestUnknownHashFormat(t *testing.T) {
	if _, err := VerifyPassword("x", "plaintext"); !errors.Is(err, ErrUnknownHash) {
		t.Fatalf("expected ErrUnknownHash, got %v", err)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("user-secret", "65f000000000000000000001", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseAccessToken(token, "user-secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "65f000000000000000000001" {
		t.Fatalf("UserID = %q", claims.UserID)
	}

	if _, err := ParseAccessToken(token, "other-secret"); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Fatalf("wrong secret: got %v, want signature error", err)
	}
}

func TestExpiredAndMalformedTokens(t *testing.T) {
	expired, err := GenerateAccessToken("s", "u1", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseAccessToken(expired, "s"); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expired: got %v, want ErrTokenExpired", err)
	}
	if _, err := ParseAccessToken("not-a-jwt", "s"); !errors.Is(err, jwt.ErrTokenMalformed) {
		t.Fatalf("malformed: got %v, want ErrTokenMalformed", err)
	}
}

func TestAdminToken(t *testing.T) {
	token, err := GenerateAdminToken("admin-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseAdminToken(token, "admin-secret"); err != nil {
		t.Fatalf("parse admin: %v", err)
	}

	// A user token signed with the same secret is valid but not an admin.
	userToken, _ := GenerateAccessToken("admin-secret", "u1", time.Hour)
	if _, err := ParseAdminToken(userToken, "admin-secret"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("user token as admin: got %v, want ErrNotAdmin", err)
	}
}
