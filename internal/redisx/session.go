package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch hanya menghapus lock jika nilainya masih kode pemegang, supaya lock transaksi baru tidak ikut terhapus.
const luaReleaseIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// luaTakeList membaca lalu menghapus list secara atomik.
const luaTakeList = `
local v = redis.call('LRANGE', KEYS[1], 0, -1)
redis.call('DEL', KEYS[1])
return v
`

// SessionStore: session.Store berbasis Redis, dipakai bersama oleh beberapa instance api.
type SessionStore struct{ RDB *redis.Client }

func (s *SessionStore) AcquireLock(ctx context.Context, telegramID int64, code string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyUserLock, telegramID)
	ok, err := s.RDB.SetNX(ctx, key, code, max(ttl, TTLLockFloor)).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	cur, err := s.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// lock baru saja lepas; coba sekali lagi
		return s.RDB.SetNX(ctx, key, code, max(ttl, TTLLockFloor)).Result()
	}
	if err != nil {
		return false, err
	}
	return cur == code, nil
}

func (s *SessionStore) LockHolder(ctx context.Context, telegramID int64) (string, error) {
	v, err := s.RDB.Get(ctx, fmt.Sprintf(KeyUserLock, telegramID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *SessionStore) ReleaseLock(ctx context.Context, telegramID int64, code string) error {
	return s.RDB.Eval(ctx, luaReleaseIfMatch, []string{fmt.Sprintf(KeyUserLock, telegramID)}, code).Err()
}

func (s *SessionStore) AllowCheck(ctx context.Context, code string, cooldown time.Duration) (bool, error) {
	return s.RDB.SetNX(ctx, fmt.Sprintf(KeyCheckCooldown, code), 1, cooldown).Result()
}

func (s *SessionStore) RememberMessage(ctx context.Context, code, ref string, ttl time.Duration) error {
	key := fmt.Sprintf(KeyUIMessages, code)
	pipe := s.RDB.TxPipeline()
	pipe.RPush(ctx, key, ref)
	pipe.Expire(ctx, key, max(ttl, TTLUIFloor))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) TakeMessages(ctx context.Context, code string) ([]string, error) {
	refs, err := s.RDB.Eval(ctx, luaTakeList, []string{fmt.Sprintf(KeyUIMessages, code)}).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return refs, err
}
