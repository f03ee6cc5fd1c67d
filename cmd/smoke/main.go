// Command smoke exercises the full identity lifecycle against the in-memory
// store: user and group management, membership merging, login, refresh and
// revocation. It exits non-zero on the first broken invariant.
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"identra.org/internal/authn"
	"identra.org/internal/catalog"
	"identra.org/internal/directory"
	"identra.org/internal/membership"
	"identra.org/internal/obs"
	"identra.org/internal/store/memory"
)

func main() {
	log.SetFlags(0)
	ctx := context.Background()
	logger := obs.NewLog(os.Stderr)
	store := memory.New()
	hasher := authn.NewBcryptHasher(4)

	users, err := directory.NewService(store, hasher, logger)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}
	groups, err := catalog.NewService(store, logger)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	members, err := membership.NewService(store, users, groups, logger)
	if err != nil {
		log.Fatalf("membership: %v", err)
	}
	users.BindMemberships(members)
	groups.BindMemberships(members)

	issuer, err := authn.NewIssuer("smoke-access", "smoke-refresh")
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	auth, err := authn.NewService(users, issuer, hasher, logger)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	alice, err := users.Create(ctx, directory.Candidate{Login: "alice", Password: "wonder", Age: 30})
	if err != nil {
		log.Fatalf("create alice: %v", err)
	}
	bob, err := users.Create(ctx, directory.Candidate{Login: "bob", Password: "builder", Age: 35})
	if err != nil {
		log.Fatalf("create bob: %v", err)
	}
	if _, err := users.Create(ctx, directory.Candidate{Login: "alice", Password: "x", Age: 20}); !errors.Is(err, directory.ErrLoginTaken) {
		log.Fatalf("duplicate login must conflict, got %v", err)
	}

	ops, err := groups.Create(ctx, "ops", []catalog.Permission{catalog.PermissionRead, catalog.PermissionWrite})
	if err != nil {
		log.Fatalf("create group: %v", err)
	}

	_, outcome, err := members.AddUsersToGroup(ctx, ops.ID, []string{alice.ID})
	if err != nil || outcome != membership.OutcomeCreated {
		log.Fatalf("first add: outcome %v err %v", outcome, err)
	}
	row, outcome, err := members.AddUsersToGroup(ctx, ops.ID, []string{alice.ID, bob.ID})
	if err != nil || outcome != membership.OutcomeMerged {
		log.Fatalf("merge add: outcome %v err %v", outcome, err)
	}
	if len(row.UserIDs) != 2 {
		log.Fatalf("expected 2 members after merge, got %v", row.UserIDs)
	}
	if _, _, err := members.AddUsersToGroup(ctx, ops.ID, []string{"ghost"}); !errors.Is(err, membership.ErrUnknownUsers) {
		log.Fatalf("unknown user must be rejected wholesale, got %v", err)
	}

	pair, err := auth.Login(ctx, "alice", "wonder")
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	if _, err := auth.Login(ctx, "alice", "wrong"); !errors.Is(err, authn.ErrPasswordMismatch) {
		log.Fatalf("wrong password must mismatch, got %v", err)
	}
	if _, _, err := auth.Refresh(ctx, pair.RefreshToken); err != nil {
		log.Fatalf("refresh: %v", err)
	}
	if err := auth.Logout(ctx, pair.RefreshToken); err != nil {
		log.Fatalf("logout: %v", err)
	}
	if _, _, err := auth.Refresh(ctx, pair.RefreshToken); err == nil {
		log.Fatal("refresh after logout must fail")
	}

	if err := users.Delete(ctx, alice.ID); err != nil {
		log.Fatalf("delete alice: %v", err)
	}
	got, err := users.GetByID(ctx, alice.ID)
	if err != nil || !got.IsDeleted {
		log.Fatalf("deleted user must stay readable with the flag set: %+v err %v", got, err)
	}
	row, err = members.GetForGroup(ctx, ops.ID)
	if err != nil {
		log.Fatalf("get membership: %v", err)
	}
	if len(row.UserIDs) != 1 || row.UserIDs[0] != bob.ID {
		log.Fatalf("alice must be pruned from membership, got %v", row.UserIDs)
	}

	if err := groups.Delete(ctx, ops.ID); err != nil {
		log.Fatalf("delete group: %v", err)
	}
	if _, _, err := members.AddUsersToGroup(ctx, ops.ID, []string{bob.ID}); !errors.Is(err, membership.ErrGroupNotFound) {
		log.Fatalf("add after group delete must fail with group not found, got %v", err)
	}

	log.Println("smoke: all invariants hold")
}
