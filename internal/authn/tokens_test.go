package authn

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, opts ...IssuerOption) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("access-secret", "refresh-secret", opts...)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return issuer
}

func TestNewIssuerRequiresBothSecrets(t *testing.T) {
	if _, err := NewIssuer("", "refresh"); err == nil {
		t.Fatal("missing access secret accepted")
	}
	if _, err := NewIssuer("access", "  "); err == nil {
		t.Fatal("blank refresh secret accepted")
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	access, exp, err := issuer.IssueAccess("alice")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry in the past: %v", exp)
	}
	claims, err := issuer.VerifyAccess(access)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.Subject != "alice" || claims.TokenType != tokenTypeAccess {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("jti not set")
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer(t)

	refresh, _, err := issuer.IssueRefresh("alice")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := issuer.VerifyAccess(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}

	access, _, err := issuer.IssueAccess("alice")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := issuer.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewIssuer("other-access", "other-refresh")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	token, _, err := other.IssueAccess("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature accepted: %v", err)
	}
}

func TestVerifyReportsExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer := newTestIssuer(t,
		WithAccessTTL(time.Minute),
		WithIssuerClock(func() time.Time { return clock() }),
	)

	token, _, err := issuer.IssueAccess("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.VerifyAccess(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsEmptyAndMalformed(t *testing.T) {
	issuer := newTestIssuer(t)

	for _, token := range []string{"", "   ", "not.a.jwt"} {
		if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestSignRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(t)
	if _, _, err := issuer.IssueAccess("  "); err == nil {
		t.Fatal("blank subject accepted")
	}
}
