package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("user not found")
	ErrLoginTaken   = errors.New("login is not available")
	ErrNoSubstring  = errors.New("login substring is required")
	ErrNoMatches    = errors.New("no users match the login substring")
	ErrStorage      = errors.New("storage failure")
)

// User is a directory record. Deletion is a soft flag: the row stays and its
// login stays reserved forever.
type User struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	Age          int       `json:"age"`
	RefreshToken string    `json:"-"`
	IsDeleted    bool      `json:"is_deleted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Candidate carries the caller-supplied fields for creating or updating a user.
type Candidate struct {
	Login    string
	Password string
	Age      int
}

// Store describes persistence operations required by the directory.
// Implementations must return the package sentinel errors for not-found and
// unique-violation conditions.
type Store interface {
	// RunInTx executes fn inside one transaction; the transaction travels in
	// the context so calls into other components share it.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByLogin(ctx context.Context, login string) (User, error)
	GetUserByRefreshToken(ctx context.Context, token string) (User, error)
	// UpdateUser persists login, password hash, age and updated_at. It never
	// touches the stored refresh token.
	UpdateUser(ctx context.Context, u User) error
	SetRefreshTokenByLogin(ctx context.Context, login, token string) error
	ClearRefreshToken(ctx context.Context, userID string) error
	SoftDeleteUser(ctx context.Context, id string) error
	LoginExists(ctx context.Context, login string) (bool, error)
	CountUsersByIDs(ctx context.Context, ids []string) (int, error)
	// SearchUsersByLogin returns users whose login contains the substring,
	// case-insensitively, in creation order.
	SearchUsersByLogin(ctx context.Context, substring string) ([]User, error)
}

// Hasher is the one-way credential hash collaborator.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) error
}

// MembershipPruner removes a deleted user from every membership. Implemented
// by the membership ledger; the prune call shares the directory's transaction
// through the context.
type MembershipPruner interface {
	PruneUser(ctx context.Context, userID string) error
}
