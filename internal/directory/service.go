package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"identra.org/internal/ids"
	"identra.org/internal/obs"
)

const component = "directory"

// Service owns User rows. All mutations of users go through it; other
// components only resolve existence.
type Service struct {
	store       Store
	hasher      Hasher
	memberships MembershipPruner
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

// NewService constructs the directory service.
func NewService(store Store, hasher Hasher, log *obs.Log, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	if hasher == nil {
		return nil, errors.New("credential hasher is required")
	}
	s := &Service{
		store:  store,
		hasher: hasher,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BindMemberships attaches the membership ledger. It is injected after
// construction because the ledger itself resolves users through this service.
func (s *Service) BindMemberships(p MembershipPruner) {
	s.memberships = p
}

// GetByID returns the user, deleted or not.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

// GetByLogin returns the user with the exact login.
func (s *Service) GetByLogin(ctx context.Context, login string) (User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return User{}, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	return s.store.GetUserByLogin(ctx, login)
}

// GetByRefreshToken resolves the user whose stored refresh token matches.
func (s *Service) GetByRefreshToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, fmt.Errorf("%w: refresh token is required", ErrInvalidInput)
	}
	return s.store.GetUserByRefreshToken(ctx, token)
}

// Create registers a new user. The login must be unused by any row, deleted
// rows included: a deleted user's login is never reusable.
func (s *Service) Create(ctx context.Context, cand Candidate) (User, error) {
	cand.Login = strings.TrimSpace(cand.Login)
	if cand.Login == "" {
		return User{}, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	if cand.Password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	s.log.Event(component, "create", map[string]any{"login": cand.Login})

	taken, err := s.store.LoginExists(ctx, cand.Login)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, fmt.Errorf("%w: %s", ErrLoginTaken, cand.Login)
	}

	hash, err := s.hasher.Hash(cand.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user := User{
		ID:           ids.New(),
		Login:        cand.Login,
		PasswordHash: hash,
		Age:          cand.Age,
		IsDeleted:    false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The availability check above races with concurrent creates; the store's
	// unique constraint is the final backstop and surfaces as ErrLoginTaken.
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Update replaces login, password and age. The availability check does not
// exclude the user's own row, so sending the current login back conflicts;
// callers must submit a fresh login. The stored refresh token survives the
// update, and the password is re-hashed unconditionally.
func (s *Service) Update(ctx context.Context, id string, cand Candidate) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	cand.Login = strings.TrimSpace(cand.Login)
	if cand.Login == "" {
		return User{}, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	if cand.Password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	s.log.Event(component, "update", map[string]any{"user_id": id, "login": cand.Login})

	existing, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	taken, err := s.store.LoginExists(ctx, cand.Login)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, fmt.Errorf("%w: %s", ErrLoginTaken, cand.Login)
	}

	hash, err := s.hasher.Hash(cand.Password)
	if err != nil {
		return User{}, err
	}
	updated := existing
	updated.Login = cand.Login
	updated.PasswordHash = hash
	updated.Age = cand.Age
	updated.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, updated); err != nil {
		return User{}, err
	}
	return updated, nil
}

// Delete soft-deletes the user and prunes the id from every membership as one
// unit of work. Either both effects land or neither does.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	s.log.Event(component, "delete", map[string]any{"user_id": id})

	if _, err := s.store.GetUser(ctx, id); err != nil {
		return err
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SoftDeleteUser(ctx, id); err != nil {
			return err
		}
		if s.memberships == nil {
			return nil
		}
		return s.memberships.PruneUser(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		s.log.Error(component, "delete", err, map[string]any{"user_id": id})
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// UpdateRefreshToken stores the refresh token on the user row, replacing any
// prior one. At most one live refresh token exists per user.
func (s *Service) UpdateRefreshToken(ctx context.Context, login, token string) error {
	login = strings.TrimSpace(login)
	if login == "" {
		return fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	return s.store.SetRefreshTokenByLogin(ctx, login, token)
}

// DeleteRefreshToken clears the stored refresh token.
func (s *Service) DeleteRefreshToken(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.ClearRefreshToken(ctx, userID)
}

// IsLoginTaken reports whether any row, deleted or not, holds the login.
func (s *Service) IsLoginTaken(ctx context.Context, login string) (bool, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return false, fmt.Errorf("%w: login is required", ErrInvalidInput)
	}
	return s.store.LoginExists(ctx, login)
}

// UsersExist reports whether every id resolves to a directory row. An empty
// list resolves vacuously.
func (s *Service) UsersExist(ctx context.Context, userIDs []string) (bool, error) {
	if len(userIDs) == 0 {
		return true, nil
	}
	unique := dedupeIDs(userIDs)
	count, err := s.store.CountUsersByIDs(ctx, unique)
	if err != nil {
		return false, err
	}
	return count == len(unique), nil
}

// AutoSuggest returns up to limit users whose login contains the substring,
// case-insensitively. Results are ordered by the position of the match within
// the login, earliest first; ties keep creation order. An empty substring is
// an input error and zero matches is reported as ErrNoMatches, not as an
// empty list.
func (s *Service) AutoSuggest(ctx context.Context, substring string, limit int) ([]User, error) {
	substring = strings.TrimSpace(substring)
	if substring == "" {
		return nil, ErrNoSubstring
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be greater than zero", ErrInvalidInput)
	}
	s.log.Event(component, "auto_suggest", map[string]any{"substring": substring, "limit": limit})

	matches, err := s.store.SearchUsersByLogin(ctx, substring)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, substring)
	}

	needle := strings.ToLower(substring)
	sort.SliceStable(matches, func(i, j int) bool {
		return strings.Index(strings.ToLower(matches[i].Login), needle) <
			strings.Index(strings.ToLower(matches[j].Login), needle)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
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
