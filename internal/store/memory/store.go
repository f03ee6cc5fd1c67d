// Package memory implements the directory, catalog and membership stores
// in-process. It backs the service test suites and the smoke command; the
// durable implementation lives in store/pg.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"identra.org/internal/catalog"
	"identra.org/internal/directory"
	"identra.org/internal/membership"
)

var (
	_ directory.Store  = (*Store)(nil)
	_ catalog.Store    = (*Store)(nil)
	_ membership.Store = (*Store)(nil)
)

type txKey struct{}

// Store keeps all three collections behind one mutex, mirroring the single
// shared backing store of the durable setup. RunInTx snapshots state and
// restores it when the unit of work fails, so partial writes never stay
// visible.
type Store struct {
	mu          sync.RWMutex
	users       map[string]directory.User
	userOrder   []string
	groups      map[string]catalog.Group
	groupOrder  []string
	memberships map[string]membership.Membership // keyed by group id
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]directory.User),
		groups:      make(map[string]catalog.Group),
		memberships: make(map[string]membership.Membership),
	}
}

// RunInTx executes fn while holding the write lock. Nested calls join the
// outer unit of work instead of deadlocking on the mutex.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) write(ctx context.Context, fn func() error) error {
	if inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) read(ctx context.Context, fn func() error) error {
	if inTx(ctx) {
		return fn()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// --- directory.Store ---

func (s *Store) CreateUser(ctx context.Context, u *directory.User) error {
	return s.write(ctx, func() error {
		for _, existing := range s.users {
			if existing.Login == u.Login {
				return fmt.Errorf("%w: %s", directory.ErrLoginTaken, u.Login)
			}
		}
		s.users[u.ID] = *u
		s.userOrder = append(s.userOrder, u.ID)
		return nil
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (directory.User, error) {
	var user directory.User
	err := s.read(ctx, func() error {
		u, ok := s.users[id]
		if !ok {
			return directory.ErrNotFound
		}
		user = u
		return nil
	})
	return user, err
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (directory.User, error) {
	var user directory.User
	err := s.read(ctx, func() error {
		for _, id := range s.userOrder {
			if s.users[id].Login == login {
				user = s.users[id]
				return nil
			}
		}
		return directory.ErrNotFound
	})
	return user, err
}

func (s *Store) GetUserByRefreshToken(ctx context.Context, token string) (directory.User, error) {
	var user directory.User
	err := s.read(ctx, func() error {
		for _, id := range s.userOrder {
			if u := s.users[id]; u.RefreshToken != "" && u.RefreshToken == token {
				user = u
				return nil
			}
		}
		return directory.ErrNotFound
	})
	return user, err
}

func (s *Store) UpdateUser(ctx context.Context, u directory.User) error {
	return s.write(ctx, func() error {
		existing, ok := s.users[u.ID]
		if !ok {
			return directory.ErrNotFound
		}
		for _, other := range s.users {
			if other.ID != u.ID && other.Login == u.Login {
				return fmt.Errorf("%w: %s", directory.ErrLoginTaken, u.Login)
			}
		}
		existing.Login = u.Login
		existing.PasswordHash = u.PasswordHash
		existing.Age = u.Age
		existing.UpdatedAt = u.UpdatedAt
		s.users[u.ID] = existing
		return nil
	})
}

func (s *Store) SetRefreshTokenByLogin(ctx context.Context, login, token string) error {
	return s.write(ctx, func() error {
		for id, u := range s.users {
			if u.Login == login {
				u.RefreshToken = token
				s.users[id] = u
				return nil
			}
		}
		return directory.ErrNotFound
	})
}

func (s *Store) ClearRefreshToken(ctx context.Context, userID string) error {
	return s.write(ctx, func() error {
		u, ok := s.users[userID]
		if !ok {
			return directory.ErrNotFound
		}
		u.RefreshToken = ""
		s.users[userID] = u
		return nil
	})
}

func (s *Store) SoftDeleteUser(ctx context.Context, id string) error {
	return s.write(ctx, func() error {
		u, ok := s.users[id]
		if !ok {
			return directory.ErrNotFound
		}
		u.IsDeleted = true
		u.UpdatedAt = time.Now().UTC()
		s.users[id] = u
		return nil
	})
}

func (s *Store) LoginExists(ctx context.Context, login string) (bool, error) {
	var exists bool
	err := s.read(ctx, func() error {
		for _, u := range s.users {
			if u.Login == login {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

func (s *Store) CountUsersByIDs(ctx context.Context, ids []string) (int, error) {
	var count int
	err := s.read(ctx, func() error {
		for _, id := range ids {
			if _, ok := s.users[id]; ok {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (s *Store) SearchUsersByLogin(ctx context.Context, substring string) ([]directory.User, error) {
	needle := strings.ToLower(substring)
	var matches []directory.User
	err := s.read(ctx, func() error {
		for _, id := range s.userOrder {
			u := s.users[id]
			if strings.Contains(strings.ToLower(u.Login), needle) {
				matches = append(matches, u)
			}
		}
		return nil
	})
	return matches, err
}

// --- catalog.Store ---

func (s *Store) CreateGroup(ctx context.Context, g *catalog.Group) error {
	return s.write(ctx, func() error {
		for _, existing := range s.groups {
			if existing.Name == g.Name {
				return fmt.Errorf("%w: %s", catalog.ErrNameTaken, g.Name)
			}
		}
		stored := *g
		stored.Permissions = append([]catalog.Permission(nil), g.Permissions...)
		s.groups[g.ID] = stored
		s.groupOrder = append(s.groupOrder, g.ID)
		return nil
	})
}

func (s *Store) GetGroup(ctx context.Context, id string) (catalog.Group, error) {
	var group catalog.Group
	err := s.read(ctx, func() error {
		g, ok := s.groups[id]
		if !ok {
			return catalog.ErrNotFound
		}
		group = g
		group.Permissions = append([]catalog.Permission(nil), g.Permissions...)
		return nil
	})
	return group, err
}

func (s *Store) ListGroups(ctx context.Context) ([]catalog.Group, error) {
	var groups []catalog.Group
	err := s.read(ctx, func() error {
		for _, id := range s.groupOrder {
			g := s.groups[id]
			g.Permissions = append([]catalog.Permission(nil), g.Permissions...)
			groups = append(groups, g)
		}
		return nil
	})
	return groups, err
}

func (s *Store) UpdateGroup(ctx context.Context, g catalog.Group) error {
	return s.write(ctx, func() error {
		if _, ok := s.groups[g.ID]; !ok {
			return catalog.ErrNotFound
		}
		for _, other := range s.groups {
			if other.ID != g.ID && other.Name == g.Name {
				return fmt.Errorf("%w: %s", catalog.ErrNameTaken, g.Name)
			}
		}
		stored := g
		stored.Permissions = append([]catalog.Permission(nil), g.Permissions...)
		s.groups[g.ID] = stored
		return nil
	})
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.write(ctx, func() error {
		if _, ok := s.groups[id]; !ok {
			return catalog.ErrNotFound
		}
		delete(s.groups, id)
		for i, gid := range s.groupOrder {
			if gid == id {
				s.groupOrder = append(s.groupOrder[:i], s.groupOrder[i+1:]...)
				break
			}
		}
		return nil
	})
}

func (s *Store) GroupExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.read(ctx, func() error {
		_, exists = s.groups[id]
		return nil
	})
	return exists, err
}

func (s *Store) GroupNameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.read(ctx, func() error {
		for _, g := range s.groups {
			if g.Name == name {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

// --- membership.Store ---

func (s *Store) CreateMembership(ctx context.Context, m *membership.Membership) error {
	return s.write(ctx, func() error {
		if _, ok := s.memberships[m.GroupID]; ok {
			return fmt.Errorf("membership already exists for group %s", m.GroupID)
		}
		stored := *m
		stored.UserIDs = append([]string(nil), m.UserIDs...)
		s.memberships[m.GroupID] = stored
		return nil
	})
}

func (s *Store) GetMembership(ctx context.Context, groupID string) (membership.Membership, error) {
	var row membership.Membership
	err := s.read(ctx, func() error {
		m, ok := s.memberships[groupID]
		if !ok {
			return membership.ErrNotFound
		}
		row = m
		row.UserIDs = append([]string(nil), m.UserIDs...)
		return nil
	})
	return row, err
}

func (s *Store) ReplaceMembershipUserIDs(ctx context.Context, groupID string, userIDs []string, updatedAt time.Time) error {
	return s.write(ctx, func() error {
		m, ok := s.memberships[groupID]
		if !ok {
			return membership.ErrNotFound
		}
		m.UserIDs = append([]string(nil), userIDs...)
		m.UpdatedAt = updatedAt
		s.memberships[groupID] = m
		return nil
	})
}

func (s *Store) ListMembershipsContaining(ctx context.Context, userID string) ([]membership.Membership, error) {
	var rows []membership.Membership
	err := s.read(ctx, func() error {
		for _, m := range s.memberships {
			for _, id := range m.UserIDs {
				if id == userID {
					row := m
					row.UserIDs = append([]string(nil), m.UserIDs...)
					rows = append(rows, row)
					break
				}
			}
		}
		return nil
	})
	return rows, err
}

func (s *Store) DeleteMembership(ctx context.Context, groupID string) error {
	return s.write(ctx, func() error {
		delete(s.memberships, groupID)
		return nil
	})
}

func (s *Store) MembershipExists(ctx context.Context, groupID string) (bool, error) {
	var exists bool
	err := s.read(ctx, func() error {
		_, exists = s.memberships[groupID]
		return nil
	})
	return exists, err
}

// --- snapshot / restore ---

type snapshot struct {
	users       map[string]directory.User
	userOrder   []string
	groups      map[string]catalog.Group
	groupOrder  []string
	memberships map[string]membership.Membership
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		users:       make(map[string]directory.User, len(s.users)),
		userOrder:   append([]string(nil), s.userOrder...),
		groups:      make(map[string]catalog.Group, len(s.groups)),
		groupOrder:  append([]string(nil), s.groupOrder...),
		memberships: make(map[string]membership.Membership, len(s.memberships)),
	}
	for id, u := range s.users {
		snap.users[id] = u
	}
	for id, g := range s.groups {
		g.Permissions = append([]catalog.Permission(nil), g.Permissions...)
		snap.groups[id] = g
	}
	for id, m := range s.memberships {
		m.UserIDs = append([]string(nil), m.UserIDs...)
		snap.memberships[id] = m
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.users = snap.users
	s.userOrder = snap.userOrder
	s.groups = snap.groups
	s.groupOrder = snap.groupOrder
	s.memberships = snap.memberships
}
