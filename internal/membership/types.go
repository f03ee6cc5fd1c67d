package membership

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownUsers  = errors.New("some user ids are unknown")
	ErrGroupNotFound = errors.New("group not found")
	ErrNotFound      = errors.New("membership not found")
	ErrStorage       = errors.New("storage failure")
)

// Membership is the join row between one group and its member users. There is
// at most one row per group; UserIDs is a true set and stays deduplicated on
// every mutation.
type Membership struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	UserIDs   []string  `json:"user_ids"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outcome distinguishes a freshly created row from a union-merge into an
// existing one. The transport decides what status each maps to.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeMerged
)

func (o Outcome) String() string {
	if o == OutcomeMerged {
		return "merged"
	}
	return "created"
}

// Store describes persistence operations required by the ledger.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, groupID string) (Membership, error)
	// ReplaceMembershipUserIDs swaps the user id set of an existing row.
	ReplaceMembershipUserIDs(ctx context.Context, groupID string, userIDs []string, updatedAt time.Time) error
	// ListMembershipsContaining returns every row whose user id set holds the id.
	ListMembershipsContaining(ctx context.Context, userID string) ([]Membership, error)
	// DeleteMembership removes the row for the group; absent rows are a no-op.
	DeleteMembership(ctx context.Context, groupID string) error
	MembershipExists(ctx context.Context, groupID string) (bool, error)
}

// UserResolver checks user existence. The ledger holds only weak references
// into the directory and never mutates users.
type UserResolver interface {
	UsersExist(ctx context.Context, userIDs []string) (bool, error)
}

// GroupResolver checks group existence.
type GroupResolver interface {
	Exists(ctx context.Context, groupID string) (bool, error)
}
