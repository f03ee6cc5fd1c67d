package authn

import (
	"context"
	"errors"
	"time"

	"identra.org/internal/directory"
	"identra.org/internal/obs"
)

const component = "authn"

var (
	// ErrUnauthorized indicates a missing or unusable credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPasswordMismatch indicates credentials resolved to a user but the
	// password did not verify.
	ErrPasswordMismatch = errors.New("provided password does not match")
	// ErrAlreadyLoggedOut is the soft outcome of logging out without a token.
	ErrAlreadyLoggedOut = errors.New("already logged out")
)

// UserDirectory is the slice of the directory the orchestrator needs.
type UserDirectory interface {
	GetByLogin(ctx context.Context, login string) (directory.User, error)
	GetByRefreshToken(ctx context.Context, token string) (directory.User, error)
	UpdateRefreshToken(ctx context.Context, login, token string) error
	DeleteRefreshToken(ctx context.Context, userID string) error
}

// TokenPair carries both freshly issued tokens.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service composes the directory and the token issuer into the
// login / logout / refresh lifecycle. Revocation is purely row-side: the
// issuer never blacklists a signed token.
type Service struct {
	users  UserDirectory
	tokens *Issuer
	hasher directory.Hasher
	log    *obs.Log
}

// NewService constructs the auth orchestrator.
func NewService(users UserDirectory, tokens *Issuer, hasher directory.Hasher, log *obs.Log) (*Service, error) {
	if users == nil {
		return nil, errors.New("user directory is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if hasher == nil {
		return nil, errors.New("credential hasher is required")
	}
	return &Service{users: users, tokens: tokens, hasher: hasher, log: log}, nil
}

// Login verifies credentials, issues an access/refresh pair and persists the
// refresh token on the user row, replacing any prior one. A failed password
// check issues nothing and leaves the stored token untouched.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	s.log.Event(component, "login", map[string]any{"username": username})

	user, err := s.users.GetByLogin(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		return TokenPair{}, ErrPasswordMismatch
	}

	access, accessExp, err := s.tokens.IssueAccess(user.Login)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(user.Login)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.users.UpdateRefreshToken(ctx, user.Login, refresh); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Logout clears the stored refresh token. A missing token is the soft
// ErrAlreadyLoggedOut outcome, not a failure.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrAlreadyLoggedOut
	}
	s.log.Event(component, "logout", nil)

	user, err := s.users.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	return s.users.DeleteRefreshToken(ctx, user.ID)
}

// Refresh issues a fresh access token. The presented token must both match a
// user row and still verify cryptographically: logout only clears the row
// pointer, it does not invalidate the signature, so the double check is
// load-bearing. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if refreshToken == "" {
		return "", time.Time{}, ErrUnauthorized
	}
	s.log.Event(component, "refresh", nil)

	user, err := s.users.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := s.tokens.VerifyRefresh(refreshToken); err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.IssueAccess(user.Login)
}

// VerifyAccess validates a bearer access token and returns its claims. Used
// by the transport layer to guard protected routes.
func (s *Service) VerifyAccess(token string) (*Claims, error) {
	return s.tokens.VerifyAccess(token)
}
