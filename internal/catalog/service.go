package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"identra.org/internal/ids"
	"identra.org/internal/obs"
)

const component = "catalog"

// Service owns Group rows.
type Service struct {
	store       Store
	memberships MembershipDestroyer
	log         *obs.Log
	now         func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the catalog service.
func NewService(store Store, log *obs.Log, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("catalog store is required")
	}
	s := &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BindMemberships attaches the membership ledger, injected after construction
// because the ledger resolves groups through this service.
func (s *Service) BindMemberships(d MembershipDestroyer) {
	s.memberships = d
}

// GetAll lists every group.
func (s *Service) GetAll(ctx context.Context) ([]Group, error) {
	return s.store.ListGroups(ctx)
}

// GetByID returns the group.
func (s *Service) GetByID(ctx context.Context, id string) (Group, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Group{}, fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	return s.store.GetGroup(ctx, id)
}

// Exists reports whether the group is present, cheaper than a full fetch.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	return s.store.GroupExists(ctx, id)
}

// Create registers a new group with a unique name.
func (s *Service) Create(ctx context.Context, name string, permissions []Permission) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	perms, err := NormalizePermissions(permissions)
	if err != nil {
		return Group{}, err
	}
	s.log.Event(component, "create", map[string]any{"name": name})

	taken, err := s.store.GroupNameExists(ctx, name)
	if err != nil {
		return Group{}, err
	}
	if taken {
		return Group{}, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	now := s.now().UTC()
	group := Group{
		ID:          ids.New(),
		Name:        name,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// Unique constraint on the name is the backstop for concurrent creates.
	if err := s.store.CreateGroup(ctx, &group); err != nil {
		return Group{}, err
	}
	return group, nil
}

// Update replaces name and permissions. Existence is confirmed first, then
// name availability is re-checked. The check does not exclude the group's own
// row, mirroring the login rule in the directory: callers must submit a fresh
// name.
func (s *Service) Update(ctx context.Context, id, name string, permissions []Permission) (Group, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Group{}, fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	perms, err := NormalizePermissions(permissions)
	if err != nil {
		return Group{}, err
	}
	s.log.Event(component, "update", map[string]any{"group_id": id, "name": name})

	existing, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return Group{}, err
	}
	taken, err := s.store.GroupNameExists(ctx, name)
	if err != nil {
		return Group{}, err
	}
	if taken {
		return Group{}, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	updated := existing
	updated.Name = name
	updated.Permissions = perms
	updated.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateGroup(ctx, updated); err != nil {
		return Group{}, err
	}
	return updated, nil
}

// Delete confirms existence, then removes the group and destroys its
// membership row as one unit of work.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	s.log.Event(component, "delete", map[string]any{"group_id": id})

	if _, err := s.store.GetGroup(ctx, id); err != nil {
		return err
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if s.memberships != nil {
			if err := s.memberships.DestroyForGroup(ctx, id); err != nil {
				return err
			}
		}
		return s.store.DeleteGroup(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		s.log.Error(component, "delete", err, map[string]any{"group_id": id})
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// IsNameTaken reports whether any group holds the name.
func (s *Service) IsNameTaken(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	return s.store.GroupNameExists(ctx, name)
}
