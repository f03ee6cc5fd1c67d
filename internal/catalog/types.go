package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("group not found")
	ErrNameTaken         = errors.New("group name is not available")
	ErrInvalidPermission = errors.New("unsupported permission")
	ErrStorage           = errors.New("storage failure")
)

// Permission is a flat capability tag on a group. There is no hierarchy and
// no evaluation logic behind these.
type Permission string

const (
	PermissionRead        Permission = "READ"
	PermissionWrite       Permission = "WRITE"
	PermissionDelete      Permission = "DELETE"
	PermissionShare       Permission = "SHARE"
	PermissionUploadFiles Permission = "UPLOAD_FILES"
)

var knownPermissions = map[Permission]struct{}{
	PermissionRead:        {},
	PermissionWrite:       {},
	PermissionDelete:      {},
	PermissionShare:       {},
	PermissionUploadFiles: {},
}

// NormalizePermissions upper-cases, deduplicates and validates tags.
func NormalizePermissions(tags []Permission) ([]Permission, error) {
	seen := make(map[Permission]struct{}, len(tags))
	result := make([]Permission, 0, len(tags))
	for _, tag := range tags {
		tag = Permission(strings.ToUpper(strings.TrimSpace(string(tag))))
		if tag == "" {
			continue
		}
		if _, ok := knownPermissions[tag]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPermission, tag)
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	return result, nil
}

// Group is a named set of permission tags.
type Group struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Store describes persistence operations required by the catalog.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id string) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	UpdateGroup(ctx context.Context, g Group) error
	DeleteGroup(ctx context.Context, id string) error
	GroupExists(ctx context.Context, id string) (bool, error)
	GroupNameExists(ctx context.Context, name string) (bool, error)
}

// MembershipDestroyer removes a deleted group's membership row. Implemented
// by the membership ledger; the call shares the catalog's transaction through
// the context.
type MembershipDestroyer interface {
	DestroyForGroup(ctx context.Context, groupID string) error
}
