package directory_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"identra.org/internal/catalog"
	"identra.org/internal/directory"
	"identra.org/internal/membership"
	"identra.org/internal/obs"
	"identra.org/internal/store/memory"
)

// plainHasher keeps the password readable so tests can assert on it.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }
func (plainHasher) Verify(hash, plain string) error {
	if hash != "hashed:"+plain {
		return errors.New("mismatch")
	}
	return nil
}

type fixture struct {
	store   *memory.Store
	users   *directory.Service
	groups  *catalog.Service
	members *membership.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := obs.NewLog(io.Discard)
	store := memory.New()
	users, err := directory.NewService(store, plainHasher{}, log)
	if err != nil {
		t.Fatalf("directory service: %v", err)
	}
	groups, err := catalog.NewService(store, log)
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	members, err := membership.NewService(store, users, groups, log)
	if err != nil {
		t.Fatalf("membership service: %v", err)
	}
	users.BindMemberships(members)
	groups.BindMemberships(members)
	return &fixture{store: store, users: users, groups: groups, members: members}
}

func TestCreateHashesPasswordAndSetsTimestamps(t *testing.T) {
	f := newFixture(t)

	user, err := f.users.Create(context.Background(), directory.Candidate{Login: "alice", Password: "pw", Age: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.ID == "" {
		t.Fatal("id not assigned")
	}
	if user.PasswordHash != "hashed:pw" {
		t.Fatalf("password not hashed: %q", user.PasswordHash)
	}
	if user.CreatedAt.IsZero() || !user.CreatedAt.Equal(user.UpdatedAt) {
		t.Fatalf("timestamps wrong: %v / %v", user.CreatedAt, user.UpdatedAt)
	}
}

func TestCreateDuplicateLoginConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.users.Create(ctx, directory.Candidate{Login: "alice", Password: "pw", Age: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.users.Create(ctx, directory.Candidate{Login: "alice", Password: "other", Age: 31}); !errors.Is(err, directory.ErrLoginTaken) {
		t.Fatalf("expected ErrLoginTaken, got %v", err)
	}

	// The login stays burned even after the holder is soft-deleted.
	if err := f.users.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.users.Create(ctx, directory.Candidate{Login: "alice", Password: "pw", Age: 30}); !errors.Is(err, directory.ErrLoginTaken) {
		t.Fatalf("expected ErrLoginTaken after soft delete, got %v", err)
	}
}

func TestUpdatePreservesRefreshTokenAndRejectsOwnLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Create(ctx, directory.Candidate{Login: "alice", Password: "pw", Age: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.users.UpdateRefreshToken(ctx, "alice", "refresh-1"); err != nil {
		t.Fatalf("set refresh token: %v", err)
	}

	// Re-submitting the current login conflicts; the check spans all rows.
	if _, err := f.users.Update(ctx, user.ID, directory.Candidate{Login: "alice", Password: "pw2", Age: 31}); !errors.Is(err, directory.ErrLoginTaken) {
		t.Fatalf("expected ErrLoginTaken for own login, got %v", err)
	}

	updated, err := f.users.Update(ctx, user.ID, directory.Candidate{Login: "alice2", Password: "pw2", Age: 31})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PasswordHash != "hashed:pw2" {
		t.Fatalf("password not re-hashed: %q", updated.PasswordHash)
	}

	stored, err := f.users.GetByRefreshToken(ctx, "refresh-1")
	if err != nil {
		t.Fatalf("refresh token lost across update: %v", err)
	}
	if stored.ID != user.ID || stored.Login != "alice2" {
		t.Fatalf("unexpected user: %+v", stored)
	}
}

func TestUpdateMissingUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Update(context.Background(), "absent", directory.Candidate{Login: "x", Password: "y", Age: 20})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSoftDeletesAndPrunesMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, _ := f.users.Create(ctx, directory.Candidate{Login: "alice", Password: "pw", Age: 30})
	bob, _ := f.users.Create(ctx, directory.Candidate{Login: "bob", Password: "pw", Age: 35})
	group, err := f.groups.Create(ctx, "ops", []catalog.Permission{catalog.PermissionRead})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, _, err := f.members.AddUsersToGroup(ctx, group.ID, []string{alice.ID, bob.ID}); err != nil {
		t.Fatalf("add members: %v", err)
	}

	if err := f.users.Delete(ctx, alice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := f.users.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("deleted user must stay readable: %v", err)
	}
	if !got.IsDeleted {
		t.Fatal("is_deleted flag not set")
	}

	row, err := f.members.GetForGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if len(row.UserIDs) != 1 || row.UserIDs[0] != bob.ID {
		t.Fatalf("alice not pruned: %v", row.UserIDs)
	}

	if err := f.users.Delete(ctx, "absent"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsersExist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, _ := f.users.Create(ctx, directory.Candidate{Login: "alice", Password: "pw", Age: 30})

	ok, err := f.users.UsersExist(ctx, nil)
	if err != nil || !ok {
		t.Fatalf("empty list must resolve vacuously: %v %v", ok, err)
	}
	ok, err = f.users.UsersExist(ctx, []string{alice.ID, alice.ID})
	if err != nil || !ok {
		t.Fatalf("duplicate ids must collapse: %v %v", ok, err)
	}
	ok, err = f.users.UsersExist(ctx, []string{alice.ID, "ghost"})
	if err != nil || ok {
		t.Fatalf("unknown id must fail the whole check: %v %v", ok, err)
	}
}

func TestAutoSuggestOrderingAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, login := range []string{"watson-sherlock", "sherlockian", "Sherlock"} {
		if _, err := f.users.Create(ctx, directory.Candidate{Login: login, Password: "pw", Age: 30}); err != nil {
			t.Fatalf("create %s: %v", login, err)
		}
	}

	// Matches sort by the offset of the substring within the login; ties keep
	// creation order.
	users, err := f.users.AutoSuggest(ctx, "sherlock", 10)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(users))
	}
	if users[0].Login != "sherlockian" || users[1].Login != "Sherlock" || users[2].Login != "watson-sherlock" {
		t.Fatalf("wrong order: %s %s %s", users[0].Login, users[1].Login, users[2].Login)
	}

	users, err = f.users.AutoSuggest(ctx, "sherlock", 1)
	if err != nil || len(users) != 1 || users[0].Login != "sherlockian" {
		t.Fatalf("limit 1: %v %+v", err, users)
	}

	if _, err := f.users.AutoSuggest(ctx, "  ", 10); !errors.Is(err, directory.ErrNoSubstring) {
		t.Fatalf("expected ErrNoSubstring, got %v", err)
	}
	if _, err := f.users.AutoSuggest(ctx, "sherlock", 0); !errors.Is(err, directory.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for limit 0, got %v", err)
	}
	if _, err := f.users.AutoSuggest(ctx, "nobody", 10); !errors.Is(err, directory.ErrNoMatches) {
		t.Fatalf("expected ErrNoMatches, got %v", err)
	}
}

func TestWithClock(t *testing.T) {
	log := obs.NewLog(io.Discard)
	store := memory.New()
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	users, err := directory.NewService(store, plainHasher{}, log, directory.WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	user, err := users.Create(context.Background(), directory.Candidate{Login: "alice", Password: "pw", Age: 30})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !user.CreatedAt.Equal(fixed) {
		t.Fatalf("clock not honored: %v", user.CreatedAt)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	for i, cand := range []directory.Candidate{
		{Login: "", Password: "pw", Age: 30},
		{Login: "alice", Password: "", Age: 30},
	} {
		if _, err := f.users.Create(context.Background(), cand); !errors.Is(err, directory.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}
