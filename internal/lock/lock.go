/*
Copyright 2024 Paychain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package redlock provides Redis-backed mutual exclusion for account balances.
package redlock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const (
	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

type Locker struct {
	client redis.UniversalClient
	key    string
	value  string // only the holder of value may release or extend the lock
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

func (l *Locker) Key() string { return l.key }

func (l *Locker) Lock(ctx context.Context, timeout time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, timeout).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("lock for key %s is already held", l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

func (l *Locker) ExtendLock(ctx context.Context, extension time.Duration) error {
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, fmt.Sprintf("%d", extension.Milliseconds())).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock extension failed for key %s, either lock expired or you're not the holder", l.key)
	}
	return nil
}

// WaitLock retries Lock with exponential backoff until waitTimeout elapses.
func (l *Locker) WaitLock(ctx context.Context, lockTimeout, waitTimeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = waitTimeout

	err := backoff.Retry(func() error {
		return l.Lock(ctx, lockTimeout)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("failed to acquire lock for key %s within the wait timeout", l.key)
	}
	return nil
}

// MultiLocker holds locks on several keys at once. Keys are acquired in sorted
// order so two transfers touching the same pair of accounts cannot deadlock.
type MultiLocker struct {
	lockers []*Locker
	held    []*Locker
}

// NewMultiLocker builds a MultiLocker over the de-duplicated, sorted keys.
func NewMultiLocker(client redis.UniversalClient, value string, keys ...string) *MultiLocker {
	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	sort.Strings(unique)

	m := &MultiLocker{}
	for _, k := range unique {
		m.lockers = append(m.lockers, NewLocker(client, k, value))
	}
	return m
}

// Keys returns the keys in acquisition order.
func (m *MultiLocker) Keys() []string {
	keys := make([]string, len(m.lockers))
	for i, l := range m.lockers {
		keys[i] = l.key
	}
	return keys
}

// WaitLock acquires every key or none of them.
func (m *MultiLocker) WaitLock(ctx context.Context, lockTimeout, waitTimeout time.Duration) error {
	for _, l := range m.lockers {
		if err := l.WaitLock(ctx, lockTimeout, waitTimeout); err != nil {
			_ = m.Unlock(ctx)
			return err
		}
		m.held = append(m.held, l)
	}
	return nil
}

// Unlock releases held keys in reverse order. Every key is attempted.
func (m *MultiLocker) Unlock(ctx context.Context) error {
	var failed []string
	for i := len(m.held) - 1; i >= 0; i-- {
		if err := m.held[i].Unlock(ctx); err != nil {
			failed = append(failed, m.held[i].key)
		}
	}
	m.held = nil
	if len(failed) > 0 {
		return fmt.Errorf("failed to release locks: %s", strings.Join(failed, ", "))
	}
	return nil
}
