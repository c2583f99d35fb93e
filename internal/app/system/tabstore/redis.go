package tabstore

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis defaults
const (
	DefaultRedisTTL     = 12 * time.Hour
	DefaultRedisTimeout = 2 * time.Second
	redisKeyPrefix      = "promptshelf:tab:"
)

// RedisFactory builds per-request Redis storage. Each browser gets a random
// tab id in a signed session cookie; its keys live in one Redis hash that
// expires after TTL of inactivity.
type RedisFactory struct {
	client     redis.UniversalClient
	codec      *securecookie.SecureCookie
	cookieName string
	domain     string
	secure     bool
	ttl        time.Duration
	timeout    time.Duration
	log        *zap.Logger
}

// NewRedisFactory creates a RedisFactory. hashKey signs the tab-id cookie.
func NewRedisFactory(client redis.UniversalClient, hashKey []byte, cookieName, domain string, secure bool, logger *zap.Logger) *RedisFactory {
	codec := securecookie.New(hashKey, nil)
	codec.MaxAge(0)
	return &RedisFactory{
		client:     client,
		codec:      codec,
		cookieName: cookieName,
		domain:     domain,
		secure:     secure,
		ttl:        DefaultRedisTTL,
		timeout:    DefaultRedisTimeout,
		log:        logger,
	}
}

// For returns the storage for this request's tab, issuing a tab id cookie if
// the request has none (or an invalid one).
func (f *RedisFactory) For(w http.ResponseWriter, r *http.Request) *RedisStorage {
	tabID := f.tabID(r)
	if tabID == "" {
		tabID = uuid.NewString()
		encoded, err := f.codec.Encode(f.cookieName, tabID)
		if err != nil {
			f.log.Warn("tabstore: encode tab id cookie failed", zap.Error(err))
		} else {
			http.SetCookie(w, &http.Cookie{
				Name:     f.cookieName,
				Value:    encoded,
				Path:     "/",
				Domain:   f.domain,
				HttpOnly: true,
				Secure:   f.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}
	return &RedisStorage{
		client:  f.client,
		key:     redisKeyPrefix + tabID,
		ttl:     f.ttl,
		timeout: f.timeout,
		ctx:     r.Context(),
	}
}

func (f *RedisFactory) tabID(r *http.Request) string {
	c, err := r.Cookie(f.cookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	var id string
	if err := f.codec.Decode(f.cookieName, c.Value, &id); err != nil {
		return ""
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

// RedisStorage stores a tab's keys as fields of one Redis hash.
type RedisStorage struct {
	client  redis.UniversalClient
	key     string
	ttl     time.Duration
	timeout time.Duration
	ctx     context.Context
}

func (s *RedisStorage) Get(field string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	v, err := s.client.HGet(ctx, s.key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStorage) Set(field, value string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key, field, value)
		p.Expire(ctx, s.key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStorage) Remove(field string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	return s.client.HDel(ctx, s.key, field).Err()
}
