package service

import (
	"errors"
	"testing"
	"time"

	"github.com/tenantly/tenantly/internal/model"
)

var testClock = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T) (*TokenCodec, *time.Time) {
	t.Helper()
	c, err := NewTokenCodec("test-secret-key-for-jwt")
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	now := testClock
	c.now = func() time.Time { return now }
	return c, &now
}

func samplePrincipal() model.Principal {
	return model.Principal{
		ID:     "0192f0c4-7d1e-7a31-9c55-0f3f5b6b2a10",
		Email:  "alice@example.com",
		Role:   "user",
		RoleID: "0192f0c4-7d1e-7a31-9c55-0f3f5b6b2a11",
		Type:   model.PrincipalUser,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t)
	want := samplePrincipal()

	token, err := c.Sign(want, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if *got != want {
		t.Errorf("got %+v, want %+v", *got, want)
	}
}

func TestTokenExpiry(t *testing.T) {
	c, now := newTestCodec(t)
	token, err := c.Sign(samplePrincipal(), 10*time.Second)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	*now = testClock.Add(9 * time.Second)
	if _, err := c.Verify(token); err != nil {
		t.Fatalf("expected token valid before expiry, got %v", err)
	}

	*now = testClock.Add(10 * time.Second)
	if _, err := c.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken at expiry, got %v", err)
	}
}

func TestTokenAnySingleCharacterChangeIsInvalid(t *testing.T) {
	c, _ := newTestCodec(t)
	token, err := c.Sign(samplePrincipal(), time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	for i := 0; i < len(token); i++ {
		b := []byte(token)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		_, err := c.Verify(string(b))
		if err != ErrInvalidToken {
			t.Fatalf("altering position %d: got %v, want ErrInvalidToken", i, err)
		}
	}
}

func TestTokenFailuresAreUniform(t *testing.T) {
	c, now := newTestCodec(t)
	token, _ := c.Sign(samplePrincipal(), time.Minute)

	other, _ := NewTokenCodec("another-secret")
	other.now = c.now
	foreign, _ := other.Sign(samplePrincipal(), time.Minute)

	*now = testClock.Add(2 * time.Minute)
	_, expiredErr := c.Verify(token)
	*now = testClock
	_, foreignErr := c.Verify(foreign)
	_, garbageErr := c.Verify("not-a-token")
	_, emptyErr := c.Verify("")

	for name, err := range map[string]error{
		"expired": expiredErr, "foreign": foreignErr, "garbage": garbageErr, "empty": emptyErr,
	} {
		if err != ErrInvalidToken {
			t.Errorf("%s: got %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestDecodeUnsafeIgnoresExpiry(t *testing.T) {
	c, now := newTestCodec(t)
	token, _ := c.Sign(samplePrincipal(), time.Second)
	*now = testClock.Add(time.Hour)

	p, err := c.DecodeUnsafe(token)
	if err != nil {
		t.Fatalf("DecodeUnsafe: %v", err)
	}
	if p.Email != "alice@example.com" {
		t.Errorf("got email %q", p.Email)
	}
	if _, err := c.DecodeUnsafe("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}

	exp, err := c.ExpiresAt(token)
	if err != nil {
		t.Fatalf("ExpiresAt: %v", err)
	}
	if !exp.Equal(testClock.Add(time.Second)) {
		t.Errorf("ExpiresAt = %v", exp)
	}
}

func TestNewTokenCodecRequiresSecret(t *testing.T) {
	if _, err := NewTokenCodec(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestSignRejectsNonPositiveTTL(t *testing.T) {
	c, _ := newTestCodec(t)
	if _, err := c.Sign(samplePrincipal(), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
