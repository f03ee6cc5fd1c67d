package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"identra.org/internal/ids"
	"identra.org/internal/obs"
)

const component = "membership"

// Service owns Membership rows. It resolves users and groups through their
// owning components and never mutates either side.
type Service struct {
	store  Store
	users  UserResolver
	groups GroupResolver
	log    *obs.Log
	now    func() time.Time
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

// NewService constructs the membership ledger.
func NewService(store Store, users UserResolver, groups GroupResolver, log *obs.Log, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("membership store is required")
	}
	if users == nil || groups == nil {
		return nil, errors.New("user and group resolvers are required")
	}
	s := &Service{
		store:  store,
		users:  users,
		groups: groups,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddUsersToGroup links users to a group. Every id must resolve in the
// directory; partially valid input is rejected wholesale. If the group
// already has a membership row the new ids are union-merged into it,
// duplicates collapsing, never overwritten. The returned Outcome tells the
// caller whether the row was created or merged.
func (s *Service) AddUsersToGroup(ctx context.Context, groupID string, userIDs []string) (Membership, Outcome, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return Membership{}, OutcomeCreated, fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	userIDs = dedupeIDs(userIDs)
	if len(userIDs) == 0 {
		return Membership{}, OutcomeCreated, fmt.Errorf("%w: user ids are required", ErrInvalidInput)
	}
	s.log.Event(component, "add_users_to_group", map[string]any{"group_id": groupID, "user_ids": userIDs})

	ok, err := s.users.UsersExist(ctx, userIDs)
	if err != nil {
		return Membership{}, OutcomeCreated, err
	}
	if !ok {
		return Membership{}, OutcomeCreated, fmt.Errorf("%w: %v", ErrUnknownUsers, userIDs)
	}
	ok, err = s.groups.Exists(ctx, groupID)
	if err != nil {
		return Membership{}, OutcomeCreated, err
	}
	if !ok {
		return Membership{}, OutcomeCreated, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}

	var (
		result  Membership
		outcome Outcome
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.store.GetMembership(ctx, groupID)
		switch {
		case errors.Is(err, ErrNotFound):
			now := s.now().UTC()
			fresh := Membership{
				ID:        ids.New(),
				GroupID:   groupID,
				UserIDs:   userIDs,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.store.CreateMembership(ctx, &fresh); err != nil {
				return err
			}
			result = fresh
			outcome = OutcomeCreated
			return nil
		case err != nil:
			return err
		}

		merged := unionIDs(existing.UserIDs, userIDs)
		updatedAt := s.now().UTC()
		if err := s.store.ReplaceMembershipUserIDs(ctx, groupID, merged, updatedAt); err != nil {
			return err
		}
		existing.UserIDs = merged
		existing.UpdatedAt = updatedAt
		result = existing
		outcome = OutcomeMerged
		return nil
	})
	if err != nil {
		s.log.Error(component, "add_users_to_group", err, map[string]any{"group_id": groupID})
		return Membership{}, OutcomeCreated, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return result, outcome, nil
}

// PruneUser removes the id from every membership it appears in. Emptied rows
// stay in place; only an explicit group deletion destroys a row. Pruning an
// absent id is a no-op. The call joins any transaction already carried in ctx.
func (s *Service) PruneUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		rows, err := s.store.ListMembershipsContaining(ctx, userID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			remaining := make([]string, 0, len(row.UserIDs))
			for _, id := range row.UserIDs {
				if id != userID {
					remaining = append(remaining, id)
				}
			}
			if err := s.store.ReplaceMembershipUserIDs(ctx, row.GroupID, remaining, s.now().UTC()); err != nil {
				return err
			}
		}
		return nil
	})
}

// DestroyForGroup drops the membership row for the group entirely.
// Idempotent when none exists.
func (s *Service) DestroyForGroup(ctx context.Context, groupID string) error {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	return s.store.DeleteMembership(ctx, groupID)
}

// HasMembership reports whether the group has a membership row.
func (s *Service) HasMembership(ctx context.Context, groupID string) (bool, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return false, fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	return s.store.MembershipExists(ctx, groupID)
}

// GetForGroup returns the membership row for the group.
func (s *Service) GetForGroup(ctx context.Context, groupID string) (Membership, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return Membership{}, fmt.Errorf("%w: group id is required", ErrInvalidInput)
	}
	return s.store.GetMembership(ctx, groupID)
}

func unionIDs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	result := make([]string, 0, len(existing)+len(incoming))
	for _, id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	for _, id := range incoming {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

func dedupeIDs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
