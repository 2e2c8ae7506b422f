package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time
}

type messages struct {
	refs    []string
	expires time.Time
}

// Memory: Store in-process untuk satu instance & test. Entry kedaluwarsa dibuang saat diakses.
type Memory struct {
	mu        sync.Mutex
	now       func() time.Time
	locks     map[int64]entry
	cooldowns map[string]time.Time
	msgs      map[string]messages
}

func NewMemory() *Memory {
	return &Memory{
		now:       time.Now,
		locks:     make(map[int64]entry),
		cooldowns: make(map[string]time.Time),
		msgs:      make(map[string]messages),
	}
}

func (m *Memory) AcquireLock(_ context.Context, telegramID int64, code string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.locks[telegramID]; ok && now.Before(cur.expires) {
		return cur.value == code, nil
	}
	m.locks[telegramID] = entry{value: code, expires: now.Add(ttl)}
	return true, nil
}

func (m *Memory) LockHolder(_ context.Context, telegramID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.locks[telegramID]
	if !ok {
		return "", nil
	}
	if !m.now().Before(cur.expires) {
		delete(m.locks, telegramID)
		return "", nil
	}
	return cur.value, nil
}

func (m *Memory) ReleaseLock(_ context.Context, telegramID int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.locks[telegramID]; ok && cur.value == code {
		delete(m.locks, telegramID)
	}
	return nil
}

func (m *Memory) AllowCheck(_ context.Context, code string, cooldown time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if until, ok := m.cooldowns[code]; ok && now.Before(until) {
		return false, nil
	}
	m.cooldowns[code] = now.Add(cooldown)
	m.gc(now)
	return true, nil
}

func (m *Memory) RememberMessage(_ context.Context, code, ref string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.msgs[code]
	cur.refs = append(cur.refs, ref)
	cur.expires = m.now().Add(ttl)
	m.msgs[code] = cur
	return nil
}

func (m *Memory) TakeMessages(_ context.Context, code string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.msgs[code]
	delete(m.msgs, code)
	if !ok || !m.now().Before(cur.expires) {
		return nil, nil
	}
	return cur.refs, nil
}

// gc membuang cooldown & pesan yang sudah lewat supaya map tidak tumbuh terus.
func (m *Memory) gc(now time.Time) {
	for k, until := range m.cooldowns {
		if !now.Before(until) {
			delete(m.cooldowns, k)
		}
	}
	for k, v := range m.msgs {
		if !now.Before(v.expires) {
			delete(m.msgs, k)
		}
	}
}
