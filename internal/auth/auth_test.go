package auth

import (
	"errors"
	"testing"
	"time"

	"xsync-go/internal/testutil"
	"xsync-go/internal/xsync"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenIssuer_RoundTrip(t *testing.T) {
	t.Parallel()
	ti, err := NewTokenIssuer(testSecret, time.Hour, testutil.FixedClock())
	if err != nil {
		t.Fatal(err)
	}
	tok, err := ti.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	got, err := ti.Verify(tok)
	if err != nil || got != "alice@example.com" {
		t.Errorf("Verify() = %q, %v", got, err)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	t.Parallel()
	clock := testutil.FixedClock()
	ti, _ := NewTokenIssuer(testSecret, time.Hour, clock)
	other, _ := NewTokenIssuer("ffffffffffffffffffffffffffffffff", time.Hour, clock)

	foreign, _ := other.Issue("alice@example.com")
	valid, _ := ti.Issue("alice@example.com")

	tests := []struct {
		name  string
		token string
		setup func()
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: foreign},
		{name: "expired", token: valid, setup: func() { clock.Advance(2 * time.Hour) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			if _, err := ti.Verify(tt.token); !errors.Is(err, xsync.ErrUnauthenticated) {
				t.Errorf("Verify() error = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewTokenIssuer("short", time.Hour, testutil.FixedClock()); !errors.Is(err, xsync.ErrConfiguration) {
		t.Errorf("short secret error = %v", err)
	}
	if _, err := NewTokenIssuer(testSecret, 0, testutil.FixedClock()); !errors.Is(err, xsync.ErrConfiguration) {
		t.Errorf("zero ttl error = %v", err)
	}
}

func TestPassword(t *testing.T) {
	t.Parallel()
	h, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := CheckPassword(h, "hunter2"); !ok || err != nil {
		t.Errorf("CheckPassword(correct) = %v, %v", ok, err)
	}
	if ok, err := CheckPassword(h, "hunter3"); ok || err != nil {
		t.Errorf("CheckPassword(wrong) = %v, %v", ok, err)
	}
	if _, err := HashPassword(""); !errors.Is(err, xsync.ErrValidation) {
		t.Errorf("HashPassword(\"\") error = %v", err)
	}
}
