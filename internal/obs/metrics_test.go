package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/users":                   "/v1/users",
		"/v1/users/abc":               "/v1/users/:id",
		"/v1/users/suggest":           "/v1/users/suggest",
		"/v1/users/suggest?limit=3":   "/v1/users/suggest",
		"/v1/groups/abc":              "/v1/groups/:id",
		"/v1/groups/abc/members":      "/v1/groups/:id/members",
		"/v1/groups/abc/members/more": "/v1/groups/abc/members/more",
		"/v1/auth/login":              "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
