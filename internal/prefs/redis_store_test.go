package prefs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T, secret string) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), secret)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t, "")
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()
	if _, err := NewRedisStore("redis://"+addr, ""); err == nil {
		t.Fatal("expected connection error")
	}
	if _, err := NewRedisStore("://bad", ""); err == nil {
		t.Fatal("expected url parse error")
	}
}

func TestAccessTokenUnsealed(t *testing.T) {
	store, s := setupTestRedis(t, "")
	ctx := context.Background()

	if _, err := store.AccessToken(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SetAccessToken(ctx, "ghp_plain"); err != nil {
		t.Fatalf("SetAccessToken failed: %v", err)
	}
	raw, err := s.Get("nbpress:pref:access_token")
	if err != nil {
		t.Fatalf("miniredis Get failed: %v", err)
	}
	if raw != "ghp_plain" {
		t.Errorf("expected plain value stored, got %q", raw)
	}
	token, err := store.AccessToken(ctx)
	if err != nil || token != "ghp_plain" {
		t.Fatalf("AccessToken() = %q, %v", token, err)
	}

	if err := store.ClearAccessToken(ctx); err != nil {
		t.Fatalf("ClearAccessToken failed: %v", err)
	}
	if _, err := store.AccessToken(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestAccessTokenSealed(t *testing.T) {
	store, s := setupTestRedis(t, "prefs-secret")
	ctx := context.Background()

	if err := store.SetAccessToken(ctx, "ghp_secret"); err != nil {
		t.Fatalf("SetAccessToken failed: %v", err)
	}
	raw, _ := s.Get("nbpress:pref:access_token")
	if !strings.HasPrefix(raw, sealedPrefix) || strings.Contains(raw, "ghp_secret") {
		t.Fatalf("token stored unsealed: %q", raw)
	}
	token, err := store.AccessToken(ctx)
	if err != nil || token != "ghp_secret" {
		t.Fatalf("AccessToken() = %q, %v", token, err)
	}

	noSecret, err := NewRedisStore("redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer noSecret.Close()
	if _, err := noSecret.AccessToken(ctx); !errors.Is(err, ErrSealed) {
		t.Fatalf("expected ErrSealed, got %v", err)
	}

	wrongSecret, err := NewRedisStore("redis://"+s.Addr(), "other")
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer wrongSecret.Close()
	if _, err := wrongSecret.AccessToken(ctx); err == nil {
		t.Fatal("expected error opening with the wrong secret")
	}
}

func TestBlogRepo(t *testing.T) {
	store, _ := setupTestRedis(t, "prefs-secret")
	ctx := context.Background()

	if _, err := store.BlogRepo(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.SetBlogRepo(ctx, "alice/blog"); err != nil {
		t.Fatalf("SetBlogRepo failed: %v", err)
	}
	repo, err := store.BlogRepo(ctx)
	if err != nil || repo != "alice/blog" {
		t.Fatalf("BlogRepo() = %q, %v", repo, err)
	}
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := newSealer("k")
	if err != nil {
		t.Fatalf("newSealer() error = %v", err)
	}
	a, err := s.seal("value", "label")
	if err != nil {
		t.Fatalf("seal() error = %v", err)
	}
	b, _ := s.seal("value", "label")
	if a == b {
		t.Fatal("expected fresh nonce per seal")
	}
	if _, err := s.open(a, "other-label"); err == nil {
		t.Fatal("expected label mismatch to fail")
	}
	plain, err := s.open(a, "label")
	if err != nil || plain != "value" {
		t.Fatalf("open() = %q, %v", plain, err)
	}
}
