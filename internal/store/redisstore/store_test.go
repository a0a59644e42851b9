package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client), mr
}

func TestCaptchaLifecycle(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.SetCaptcha(ctx, "a@b.c", "123456"); err != nil {
		t.Fatalf("set: %v", err)
	}
	code, err := s.GetCaptcha(ctx, "a@b.c")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if code != "123456" {
		t.Fatalf("unexpected code %q", code)
	}

	// Expires after the TTL.
	mr.FastForward(11 * time.Minute)
	if _, err := s.GetCaptcha(ctx, "a@b.c"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after expiry, got %v", err)
	}

	if err := s.SetCaptcha(ctx, "a@b.c", "654321"); err != nil {
		t.Fatalf("set again: %v", err)
	}
	if err := s.DeleteCaptcha(ctx, "a@b.c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetCaptcha(ctx, "a@b.c"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestChatState(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Miss is not an error.
	state, found, err := s.GetChatState(ctx, "chat-1")
	if err != nil || found || state != "" {
		t.Fatalf("expected clean miss, got state=%q found=%v err=%v", state, found, err)
	}

	if err := s.SetChatState(ctx, "chat-1", "loading"); err != nil {
		t.Fatalf("set: %v", err)
	}
	state, found, err = s.GetChatState(ctx, "chat-1")
	if err != nil || !found || state != "loading" {
		t.Fatalf("expected loading, got state=%q found=%v err=%v", state, found, err)
	}

	if err := s.SetChatState(ctx, "chat-1", "complete"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	state, _, _ = s.GetChatState(ctx, "chat-1")
	if state != "complete" {
		t.Fatalf("expected complete, got %q", state)
	}
}
