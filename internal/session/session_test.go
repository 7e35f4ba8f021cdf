package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestIssueAndVerify(t *testing.T) {
	m := NewManager("s3cret")
	token, expires, err := m.Issue("alice", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expiry in the past: %v", expires)
	}

	claims, err := m.Verify(token, RoleAdmin)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "alice" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	m := NewManager("s3cret")
	good, _, err := m.Issue("alice", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(good, ".")
		repl := "A"
		if parts[2][0] == 'A' {
			repl = "B"
		}
		bad := parts[0] + "." + parts[1] + "." + repl + parts[2][1:]
		if _, err := m.Verify(bad, RoleAdmin); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(good, ".")
		other, _, _ := m.Issue("mallory", RoleAdmin, time.Hour)
		forged := parts[0] + "." + strings.Split(other, ".")[1] + "." + parts[2]
		if _, err := m.Verify(forged, RoleAdmin); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		if _, err := NewManager("other").Verify(good, RoleAdmin); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("wrong role", func(t *testing.T) {
		if _, err := m.Verify(good, RoleCustomer); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.Verify("not-a-token", RoleAdmin); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("unsigned token", func(t *testing.T) {
		claims := Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Verify(none, RoleAdmin); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestVerifyExpired(t *testing.T) {
	issuedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager("s3cret")
	m.now = fixedClock(issuedAt)

	token, _, err := m.Issue("alice", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	m.now = fixedClock(issuedAt.Add(59 * time.Minute))
	if _, err := m.Verify(token, RoleAdmin); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}

	m.now = fixedClock(issuedAt.Add(2 * time.Hour))
	if _, err := m.Verify(token, RoleAdmin); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCookie(rec, AdminCookie, "tok", time.Now().Add(time.Hour), true)
	ClearCookie(rec, CartCookie, false)

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	if c := cookies[0]; c.Name != AdminCookie || c.Value != "tok" || !c.HttpOnly || !c.Secure {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if c := cookies[1]; c.Name != CartCookie || c.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", c)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "abc"})
	if got := CookieValue(req, CartCookie); got != "abc" {
		t.Fatalf("CookieValue = %q", got)
	}
	if got := CookieValue(req, AdminCookie); got != "" {
		t.Fatalf("CookieValue for missing cookie = %q", got)
	}
}
