package tokencache

import (
	"testing"
	"time"
)

func TestFreshTokenReturnedBeforeSkew(t *testing.T) {
	now := time.Now()
	c := New()
	key := Key("/adc.json", "authorized_user", nil)
	c.Put(key, Token{AccessToken: "abc", ExpiresAt: now.Add(5 * time.Minute), Source: "authorized_user"})

	got, ok := c.Get(key, now)
	if !ok {
		t.Fatal("expected cached token to be fresh")
	}
	if got.AccessToken != "abc" {
		t.Fatalf("unexpected token: %+v", got)
	}
}

func TestStaleTokenWithinSkewIsAbsent(t *testing.T) {
	now := time.Now()
	c := New()
	key := Key("/adc.json", "authorized_user", nil)
	c.Put(key, Token{AccessToken: "abc", ExpiresAt: now.Add(30 * time.Second)})

	if _, ok := c.Get(key, now); ok {
		t.Fatal("expected token within skew window to be reported stale")
	}
}

func TestNoExpiryTokenAlwaysFresh(t *testing.T) {
	now := time.Now()
	c := New()
	key := Key("env", "env_token", nil)
	c.Put(key, Token{AccessToken: "xyz"})

	got, ok := c.Get(key, now.Add(999*time.Hour))
	if !ok || got.AccessToken != "xyz" {
		t.Fatal("expected no-expiry token to remain fresh indefinitely")
	}
}

func TestEvictRemovesEntry(t *testing.T) {
	now := time.Now()
	c := New()
	key := Key("/adc.json", "authorized_user", nil)
	c.Put(key, Token{AccessToken: "abc", ExpiresAt: now.Add(time.Hour)})
	c.Evict(key)

	if _, ok := c.Get(key, now); ok {
		t.Fatal("expected evicted key to be absent")
	}
}

func TestKeyIncludesSortedScopes(t *testing.T) {
	k1 := Key("/adc.json", "service_account", []string{"a", "b"})
	k2 := Key("/adc.json", "service_account", nil)
	if k1 == k2 {
		t.Fatal("expected scope-qualified key to differ from unscoped key")
	}
}
