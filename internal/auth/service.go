package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	coreerrors "github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// UserStore is the subset of the persistence gateway the login flow
// needs.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
}

// Service implements login/logout (§6).
type Service struct {
	users     UserStore
	issuer    *Issuer
	blacklist BlacklistStore
}

// NewService constructs the login/logout service.
func NewService(users UserStore, issuer *Issuer, blacklist BlacklistStore) *Service {
	return &Service{users: users, issuer: issuer, blacklist: blacklist}
}

// Login verifies an email/password pair and issues a JWT.
func (s *Service) Login(ctx context.Context, email, password string) (token string, user model.User, err error) {
	user, err = s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", model.User{}, coreerrors.Unauthorized("invalid email or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", model.User{}, coreerrors.Unauthorized("invalid email or password")
	}
	token, err = s.issuer.Issue(user.PublicID, user.Role)
	if err != nil {
		return "", model.User{}, err
	}
	return token, user, nil
}

// Logout blacklists the jti carried by a verified JWT so it can never be
// used again, even before its natural expiry.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.issuer.Verify(tokenString)
	if err != nil {
		return err
	}
	return s.blacklist.BlacklistJWT(ctx, claims.ID)
}

// HashPassword bcrypt-hashes a plaintext password for storage, used when
// provisioning the initial admin user and any user-creation endpoint.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// PurgeBlacklistJanitor deletes blacklist rows older than retention once.
// The runtime's blacklist-janitor ticker worker calls the store's
// PurgeExpiredBlacklistEntries directly rather than this wrapper.
func PurgeBlacklistJanitor(ctx context.Context, blacklist BlacklistStore, retention time.Duration) (int64, error) {
	return blacklist.PurgeExpiredBlacklistEntries(ctx, retention)
}
