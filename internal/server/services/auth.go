// Package services contains server-side business logic. This file implements
// AuthService, which handles registration, credential checks, and the
// lifecycle of opaque session tokens stored server-side.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/config"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
)

// tokenByteLength is the number of random bytes per session token. The
// hex-encoded value stored and sent to clients is twice as long.
const tokenByteLength = 32

// AuthService provides authentication operations:
//   - Register: create users
//   - Login: verify credentials and issue a session token
//   - Resolve: map a presented token to its user
//   - Revoke / RevokeAll: invalidate sessions
type AuthService struct {
	db                    *sql.DB
	repomanager           repomanager.RepositoryManager
	tokenValidityDuration time.Duration
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AuthService {
	return &AuthService{
		db:                    db,
		repomanager:           m,
		tokenValidityDuration: cfg.TokenValidityDuration,
	}
}

// Register creates a new user with a bcrypt hash of the given password.
// A taken login yields common.ErrorConflict.
func (s *AuthService) Register(ctx context.Context, login, password string) (*models.User, error) {
	if login == "" || password == "" {
		return nil, common.ErrorInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %v", err)
	}

	repo := s.repomanager.Users(s.db)
	u, err := repo.Create(ctx, &models.User{Login: login, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("error creating user: %v", err)
	}
	return u, nil
}

// Login verifies the credentials and, on success, issues a fresh session
// token. Unknown logins and wrong passwords are indistinguishable to the
// caller; both yield ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, login, password string) (string, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return "", common.ErrorUnauthorized
	}

	return s.Issue(ctx, user.ID)
}

// Issue mints a new random session token for the user and persists it.
// Issuing does not invalidate the user's other active tokens.
func (s *AuthService) Issue(ctx context.Context, userID string) (string, error) {
	value, err := common.MakeRandHexString(tokenByteLength)
	if err != nil {
		return "", fmt.Errorf("error generating token: %v", err)
	}

	now := time.Now()
	repo := s.repomanager.Tokens(s.db)
	if err := repo.Create(ctx, userID, value, now, now.Add(s.tokenValidityDuration)); err != nil {
		return "", fmt.Errorf("error saving token: %v", err)
	}
	return value, nil
}

// Resolve maps a presented token to the owning user's ID. Unknown,
// revoked, and expired tokens all yield ErrorUnauthorized; an expired
// token is additionally deactivated so the outcome survives restarts.
func (s *AuthService) Resolve(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", common.ErrorUnauthorized
	}

	repo := s.repomanager.Tokens(s.db)
	token, err := repo.FindActive(ctx, value)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", common.ErrorInternal
	}

	if time.Now().After(token.ExpiresAt) {
		if err := repo.Deactivate(ctx, value); err != nil {
			return "", fmt.Errorf("error deactivating expired token: %v", err)
		}
		return "", common.ErrorUnauthorized
	}

	return token.UserID, nil
}

// Revoke deactivates the session token. Revoking an already inactive or
// unknown token is not an error.
func (s *AuthService) Revoke(ctx context.Context, value string) error {
	repo := s.repomanager.Tokens(s.db)
	if err := repo.Deactivate(ctx, value); err != nil {
		return fmt.Errorf("error revoking token: %v", err)
	}
	return nil
}

// RevokeAll deactivates every active session of the user.
func (s *AuthService) RevokeAll(ctx context.Context, userID string) error {
	repo := s.repomanager.Tokens(s.db)
	if err := repo.DeactivateAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("error revoking tokens: %v", err)
	}
	return nil
}

// ChangePassword verifies the current password, stores a hash of the new
// one, and revokes all of the user's sessions. The hash update and the
// session revocation commit together.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return common.ErrorInvalidInput
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return common.ErrorInternal
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(oldPassword)); err != nil {
		return common.ErrorUnauthorized
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %v", err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePasswordHash(ctx, userID, hash); err != nil {
			return fmt.Errorf("error updating password: %v", err)
		}
		if err := s.repomanager.Tokens(tx).DeactivateAllForUser(ctx, userID); err != nil {
			return fmt.Errorf("error revoking tokens: %v", err)
		}
		return nil
	})
}
