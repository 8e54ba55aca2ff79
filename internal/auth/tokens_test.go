package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stefanposs/webmacs/internal/model"
)

type fakeDirectory struct {
	apiTokensByHash map[string]model.ApiToken
	usersByID       map[int64]model.User
	usersByPublicID map[string]model.User
	blacklisted     map[string]bool
	blacklistErr    error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		apiTokensByHash: map[string]model.ApiToken{},
		usersByID:       map[int64]model.User{},
		usersByPublicID: map[string]model.User{},
		blacklisted:     map[string]bool{},
	}
}

func (f *fakeDirectory) GetApiTokenByHash(ctx context.Context, tokenHash string) (model.ApiToken, error) {
	t, ok := f.apiTokensByHash[tokenHash]
	if !ok {
		return model.ApiToken{}, errNotFound
	}
	return t, nil
}

func (f *fakeDirectory) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	u, ok := f.usersByID[id]
	if !ok {
		return model.User{}, errNotFound
	}
	return u, nil
}

func (f *fakeDirectory) GetUserByPublicID(ctx context.Context, publicID string) (model.User, error) {
	u, ok := f.usersByPublicID[publicID]
	if !ok {
		return model.User{}, errNotFound
	}
	return u, nil
}

func (f *fakeDirectory) BlacklistJWT(ctx context.Context, jti string) error {
	f.blacklisted[jti] = true
	return nil
}

func (f *fakeDirectory) IsJWTBlacklisted(ctx context.Context, jti string) (bool, error) {
	if f.blacklistErr != nil {
		return false, f.blacklistErr
	}
	return f.blacklisted[jti], nil
}

func (f *fakeDirectory) PurgeExpiredBlacklistEntries(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

const errNotFound = simpleError("not found")

func TestOpaqueToken_RoundTrip(t *testing.T) {
	plaintext, hash, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken returned error: %v", err)
	}
	if !IsOpaqueToken(plaintext) {
		t.Error("minted token should be recognized as opaque")
	}
	if HashOpaqueToken(plaintext) != hash {
		t.Error("HashOpaqueToken should reproduce the same hash for the same plaintext")
	}
}

func TestIsOpaqueToken(t *testing.T) {
	if IsOpaqueToken("eyJhbGciOi...") {
		t.Error("a JWT-shaped string must not be treated as opaque")
	}
	if !IsOpaqueToken("wm_abc123") {
		t.Error("a wm_-prefixed string must be treated as opaque")
	}
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewIssuer("test-secret-at-least-32-bytes-long!", time.Hour)
	token, err := issuer.Issue("user-public-id", "admin")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "user-public-id" || claims.Role != "admin" {
		t.Errorf("claims = %+v, want subject=user-public-id role=admin", claims)
	}
}

func TestIssuer_Verify_RejectsTamperedToken(t *testing.T) {
	issuer := NewIssuer("test-secret-at-least-32-bytes-long!", time.Hour)
	token, _ := issuer.Issue("user-public-id", "admin")

	otherIssuer := NewIssuer("a-different-secret-32-bytes-long!!", time.Hour)
	if _, err := otherIssuer.Verify(token); err == nil {
		t.Error("a token signed with a different secret must fail verification")
	}
}

func TestIssuer_Verify_RejectsExpiredToken(t *testing.T) {
	secret := "test-secret-at-least-32-bytes-long!"
	issuer := NewIssuer(secret, time.Hour)

	past := time.Now().UTC().Add(-2 * time.Hour)
	claims := Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-public-id",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)), // expired an hour ago
			ID:        "expired-jti",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to mint test token: %v", err)
	}

	if _, err := issuer.Verify(token); err == nil {
		t.Error("an expired token must fail verification")
	}
}

func TestVerifier_Resolve_OpaqueToken(t *testing.T) {
	dir := newFakeDirectory()
	plaintext, hash, _ := NewOpaqueToken()
	dir.apiTokensByHash[hash] = model.ApiToken{UserID: 7}
	dir.usersByID[7] = model.User{PublicID: "user-7", Role: "operator"}

	v := NewVerifier(NewIssuer("secret-32-bytes-long-enough-here!!!", time.Hour), dir, dir)
	identity, err := v.Resolve(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if identity.UserPublicID != "user-7" || identity.Role != "operator" {
		t.Errorf("identity = %+v, want user-7/operator", identity)
	}
}

func TestVerifier_Resolve_OpaqueToken_Unknown(t *testing.T) {
	dir := newFakeDirectory()
	v := NewVerifier(NewIssuer("secret-32-bytes-long-enough-here!!!", time.Hour), dir, dir)
	if _, err := v.Resolve(context.Background(), "wm_nonexistent"); err == nil {
		t.Error("an unrecognized opaque token must fail resolution")
	}
}

func TestVerifier_Resolve_JWT_Blacklisted(t *testing.T) {
	dir := newFakeDirectory()
	issuer := NewIssuer("secret-32-bytes-long-enough-here!!!", time.Hour)
	token, _ := issuer.Issue("user-1", "admin")

	v := NewVerifier(issuer, dir, dir)
	// Verify once to learn the jti, then blacklist it and resolve.
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	dir.blacklisted[claims.ID] = true

	if _, err := v.Resolve(context.Background(), token); err == nil {
		t.Error("a blacklisted JWT must fail resolution")
	}
}

func TestVerifier_Resolve_JWT_NotBlacklisted(t *testing.T) {
	dir := newFakeDirectory()
	issuer := NewIssuer("secret-32-bytes-long-enough-here!!!", time.Hour)
	token, _ := issuer.Issue("user-1", "admin")

	v := NewVerifier(issuer, dir, dir)
	identity, err := v.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if identity.UserPublicID != "user-1" || identity.Role != "admin" {
		t.Errorf("identity = %+v, want user-1/admin", identity)
	}
}
