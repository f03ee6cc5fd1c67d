package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"identra.org/internal/audit"
	"identra.org/internal/authn"
	"identra.org/internal/catalog"
	"identra.org/internal/directory"
	"identra.org/internal/membership"
	"identra.org/internal/obs"
	"identra.org/internal/store/memory"
)

type testEnv struct {
	handler http.Handler
	users   *directory.Service
	groups  *catalog.Service
	members *membership.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := obs.NewLog(io.Discard)
	store := memory.New()
	hasher := authn.NewBcryptHasher(4)

	users, err := directory.NewService(store, hasher, log)
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

	issuer, err := authn.NewIssuer("test-access-secret", "test-refresh-secret")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	auth, err := authn.NewService(users, issuer, hasher, log)
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	api := New(Deps{
		Users:   users,
		Groups:  groups,
		Members: members,
		Auth:    auth,
		Audit:   audit.NewRecorder(log),
		Log:     log,
		Version: "test",
	})
	return &testEnv{handler: api.Handler(), users: users, groups: groups, members: members}
}

func (e *testEnv) seedUser(t *testing.T, login, password string) directory.User {
	t.Helper()
	user, err := e.users.Create(context.Background(), directory.Candidate{
		Login:    login,
		Password: password,
		Age:      30,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", login, err)
	}
	return user
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, login, password string) (string, *http.Cookie) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": login,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", login, rec.Code, rec.Body.String())
	}
	var resp accessTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookie {
			return resp.AccessToken, c
		}
	}
	t.Fatal("login did not set the refresh cookie")
	return "", nil
}

func TestGuardRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/users", "", map[string]any{
		"login": "x", "password": "y", "age": 20,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardRejectsGarbageToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/groups", "not-a-jwt", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUserLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")
	token, _ := env.login(t, "admin", "secret")

	rec := env.do(t, http.MethodPost, "/v1/users", token, map[string]any{
		"login": "sherlock", "password": "bakerstreet", "age": 40,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var created directory.User
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created user: %v", err)
	}
	if created.ID == "" || created.Login != "sherlock" {
		t.Fatalf("unexpected user: %+v", created)
	}

	// Duplicate login conflicts even though the first row is live.
	rec = env.do(t, http.MethodPost, "/v1/users", token, map[string]any{
		"login": "sherlock", "password": "other", "age": 41,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create: expected 409, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/users/"+created.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/v1/users/"+created.ID, token, map[string]any{
		"login": "holmes", "password": "bakerstreet", "age": 41,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/v1/users/"+created.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/users/"+created.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get after delete: status %d", rec.Code)
	}
	var deleted directory.User
	if err := json.Unmarshal(rec.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("decode deleted user: %v", err)
	}
	if !deleted.IsDeleted {
		t.Fatal("expected is_deleted true after delete")
	}
}

func TestCreateUserValidatesAge(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")
	token, _ := env.login(t, "admin", "secret")

	for _, age := range []int{3, 131, -1} {
		rec := env.do(t, http.MethodPost, "/v1/users", token, map[string]any{
			"login": fmt.Sprintf("user-%d", age), "password": "pw", "age": age,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("age %d: expected 400, got %d", age, rec.Code)
		}
	}
}

func TestAutoSuggest(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")
	env.seedUser(t, "watson-sherlock", "pw")
	env.seedUser(t, "sherlockian", "pw")
	token, _ := env.login(t, "admin", "secret")

	rec := env.do(t, http.MethodGet, "/v1/users/suggest?login_substring=sherlock&limit=1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("suggest: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Users []directory.User `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode suggest response: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].Login != "sherlockian" {
		t.Fatalf("expected sherlockian first, got %+v", resp.Users)
	}

	rec = env.do(t, http.MethodGet, "/v1/users/suggest?login_substring=nobody", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no matches: expected 404, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/users/suggest", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty substring: expected 400, got %d", rec.Code)
	}
}

func TestGroupMembersCreatedThenMerged(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")
	u1 := env.seedUser(t, "u1", "pw")
	u2 := env.seedUser(t, "u2", "pw")
	u3 := env.seedUser(t, "u3", "pw")
	token, _ := env.login(t, "admin", "secret")

	rec := env.do(t, http.MethodPost, "/v1/groups", token, map[string]any{
		"name": "ops", "permissions": []string{"READ", "WRITE"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group: status %d body %s", rec.Code, rec.Body.String())
	}
	var group catalog.Group
	if err := json.Unmarshal(rec.Body.Bytes(), &group); err != nil {
		t.Fatalf("decode group: %v", err)
	}

	membersPath := "/v1/groups/" + group.ID + "/members"

	rec = env.do(t, http.MethodPost, membersPath, token, map[string]any{
		"user_ids": []string{u1.ID, u2.ID},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first add: expected 201, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, membersPath, token, map[string]any{
		"user_ids": []string{u2.ID, u3.ID},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("merge add: expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	var row membership.Membership
	if err := json.Unmarshal(rec.Body.Bytes(), &row); err != nil {
		t.Fatalf("decode membership: %v", err)
	}
	if len(row.UserIDs) != 3 {
		t.Fatalf("expected union of 3 ids, got %v", row.UserIDs)
	}

	rec = env.do(t, http.MethodPost, membersPath, token, map[string]any{
		"user_ids": []string{"ghost"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown user: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/groups/"+group.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete group: status %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, membersPath, token, map[string]any{
		"user_ids": []string{u1.ID},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("add after group delete: expected 404, got %d", rec.Code)
	}
}

func TestInvalidPermissionRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")
	token, _ := env.login(t, "admin", "secret")

	rec := env.do(t, http.MethodPost, "/v1/groups", token, map[string]any{
		"name": "ops", "permissions": []string{"FLY"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")
	_, cookie := env.login(t, "admin", "secret")

	logout := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	logout.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, logout)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d body %s", rec.Code, rec.Body.String())
	}

	// The old cookie still carries a cryptographically valid token, but the
	// row-side pointer is gone.
	refresh := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	refresh.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, refresh)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", rec.Code)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")
	_, cookie := env.login(t, "admin", "secret")

	refresh := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	refresh.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, refresh)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp accessTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}

	got := env.do(t, http.MethodGet, "/v1/groups", resp.AccessToken, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("refreshed token rejected: status %d", got.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookie && c.Value != "" {
			t.Fatal("failed login must not set the refresh cookie")
		}
	}
}

func TestHealthEndpointsArePublic(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		rec := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "admin", "secret")
	token, _ := env.login(t, "admin", "secret")

	rec := env.do(t, http.MethodPut, "/v1/users", token, map[string]any{"login": "x"})
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow == "" {
		t.Fatal("Allow header missing")
	}
}
