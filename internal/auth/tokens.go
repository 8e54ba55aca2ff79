// Package auth implements WebMACS's two token shapes (§6): opaque
// "wm_"-prefixed API tokens hashed at rest, and HS256 JWTs issued on
// login, plus the logout blacklist and its janitor.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	coreerrors "github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

const opaqueTokenPrefix = "wm_"

// DefaultTokenTTL is the JWT's default lifetime when a caller doesn't
// request a shorter one (§6).
const DefaultTokenTTL = 24 * time.Hour

// Claims is the JWT payload WebMACS issues and verifies.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the resolved caller identity a verified token carries,
// independent of which token shape produced it.
type Identity struct {
	UserPublicID string
	Role         string
}

// NewOpaqueToken mints a random "wm_"-prefixed token and its SHA-256 hash
// for storage. The plaintext is returned once and never persisted.
func NewOpaqueToken() (plaintext, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plaintext = opaqueTokenPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, HashOpaqueToken(plaintext), nil
}

// HashOpaqueToken returns an opaque token's storage hash.
func HashOpaqueToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsOpaqueToken reports whether a bearer token is the opaque shape rather
// than a JWT.
func IsOpaqueToken(token string) bool {
	return strings.HasPrefix(token, opaqueTokenPrefix)
}

// Issuer mints and verifies HS256 JWTs.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer constructs an Issuer. secret must be at least 32 bytes in
// production (§6).
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a signed JWT for a user, embedding their role as an
// optional claim.
func (i *Issuer) Issue(userPublicID, role string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userPublicID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        newJTI(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses and validates a JWT, returning its claims. The caller is
// responsible for checking the blacklist (jti) separately.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, coreerrors.Unauthorized("invalid or expired token")
	}
	if !parsed.Valid {
		return nil, coreerrors.Unauthorized("invalid or expired token")
	}
	return claims, nil
}

func newJTI() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// BlacklistStore is the subset of the persistence gateway the janitor and
// verifier need.
type BlacklistStore interface {
	BlacklistJWT(ctx context.Context, jti string) error
	IsJWTBlacklisted(ctx context.Context, jti string) (bool, error)
	PurgeExpiredBlacklistEntries(ctx context.Context, retention time.Duration) (int64, error)
}

// UserLookup resolves a verified opaque-token's owner to their role.
type UserLookup interface {
	GetApiTokenByHash(ctx context.Context, tokenHash string) (model.ApiToken, error)
	GetUserByID(ctx context.Context, id int64) (model.User, error)
	GetUserByPublicID(ctx context.Context, publicID string) (model.User, error)
}

// Verifier resolves either token shape into an Identity.
type Verifier struct {
	issuer     *Issuer
	blacklist  BlacklistStore
	users      UserLookup
}

// NewVerifier constructs a Verifier.
func NewVerifier(issuer *Issuer, blacklist BlacklistStore, users UserLookup) *Verifier {
	return &Verifier{issuer: issuer, blacklist: blacklist, users: users}
}

// Resolve verifies a bearer token of either shape and returns the
// caller's Identity.
func (v *Verifier) Resolve(ctx context.Context, token string) (Identity, error) {
	if IsOpaqueToken(token) {
		return v.resolveOpaque(ctx, token)
	}
	return v.resolveJWT(ctx, token)
}

func (v *Verifier) resolveOpaque(ctx context.Context, token string) (Identity, error) {
	hash := HashOpaqueToken(token)
	apiToken, err := v.users.GetApiTokenByHash(ctx, hash)
	if err != nil {
		return Identity{}, coreerrors.Unauthorized("invalid or expired token")
	}
	user, err := v.users.GetUserByID(ctx, apiToken.UserID)
	if err != nil {
		return Identity{}, coreerrors.Unauthorized("invalid or expired token")
	}
	return Identity{UserPublicID: user.PublicID, Role: user.Role}, nil
}

func (v *Verifier) resolveJWT(ctx context.Context, token string) (Identity, error) {
	claims, err := v.issuer.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	if v.blacklist != nil {
		blacklisted, err := v.blacklist.IsJWTBlacklisted(ctx, claims.ID)
		if err != nil {
			return Identity{}, err
		}
		if blacklisted {
			return Identity{}, coreerrors.Unauthorized("token has been revoked")
		}
	}
	return Identity{UserPublicID: claims.Subject, Role: claims.Role}, nil
}
