package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	captchaTTL    = 10 * time.Minute
	chatStateTTL  = 24 * time.Hour
	captchaPrefix = "captcha:"
	statePrefix   = "chat_state:"
)

type Store struct {
	client *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewWithClient is used by tests to wire a miniredis-backed client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) SetCaptcha(ctx context.Context, email, code string) error {
	return s.client.Set(ctx, captchaPrefix+email, code, captchaTTL).Err()
}

func (s *Store) GetCaptcha(ctx context.Context, email string) (string, error) {
	return s.client.Get(ctx, captchaPrefix+email).Result()
}

func (s *Store) DeleteCaptcha(ctx context.Context, email string) error {
	return s.client.Del(ctx, captchaPrefix+email).Err()
}

// SetChatState mirrors the chat lifecycle state for the polling endpoint.
func (s *Store) SetChatState(ctx context.Context, chatID string, state string) error {
	return s.client.Set(ctx, statePrefix+chatID, state, chatStateTTL).Err()
}

// GetChatState returns (state, found, err); a cache miss is not an error.
func (s *Store) GetChatState(ctx context.Context, chatID string) (string, bool, error) {
	v, err := s.client.Get(ctx, statePrefix+chatID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
