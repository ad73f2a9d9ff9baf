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

package chain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/model"
)

const DefaultMaxIterations uint64 = 5_000_000

// Manager owns the in-memory chain, its persisted copy and the backup snapshot.
//
// When a backup store is configured it holds the last known-good chain and is the
// reference every process sharing the stores agrees on: each successful mutation
// rewrites it, Append and Restore reload it first, and Validate compares the persisted
// chain against it. Without a backup store the in-memory snapshot plays that role.
type Manager struct {
	mu sync.RWMutex

	store         Store
	backupStore   Store
	blocks        []Block
	snapshot      *Snapshot
	maxIterations uint64
	now           func() time.Time
}

type Option func(*Manager)

// WithBackupStore persists every snapshot so it survives restarts and is shared with
// other processes using the same stores.
func WithBackupStore(s Store) Option {
	return func(m *Manager) {
		m.backupStore = s
	}
}

// WithMaxIterations bounds the nonce search of a single Append.
func WithMaxIterations(n uint64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxIterations = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		maxIterations: DefaultMaxIterations,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads the persisted chain, writing the genesis block when neither the chain nor
// a backup is stored, and takes the initial snapshot. A persisted chain that fails
// inspection is not trusted: the manager continues from the backup and leaves the
// persisted copy for the recovery workflow. Without a usable backup Init fails with an
// integrity error.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blocks, unreadable, err := m.loadPersisted(ctx)
	if err != nil {
		return persistenceError("failed to load chain", err)
	}
	known, err := m.loadKnownGood(ctx)
	if err != nil {
		return persistenceError("failed to load chain backup", err)
	}

	if len(blocks) == 0 && len(unreadable) == 0 && known == nil {
		blocks = []Block{Genesis()}
		if err := m.store.Save(ctx, blocks); err != nil {
			return persistenceError("failed to persist genesis block", err)
		}
		logrus.Info("chain initialised with genesis block")
	}

	if tampered := inspect(blocks, unreadable, known); len(tampered) > 0 {
		if known == nil {
			return integrityError(tampered)
		}
		logrus.Warnf("persisted chain failed inspection at blocks %v, continuing from backup snapshot", tampered)
		m.blocks = cloneBlocks(known)
		m.snapshot = NewSnapshot(known, m.now())
		return nil
	}

	if !EqualBlocks(known, blocks) {
		if err := m.saveBackup(ctx, blocks); err != nil {
			return persistenceError("failed to persist chain backup", err)
		}
	}
	m.blocks = blocks
	m.snapshot = NewSnapshot(blocks, m.now())
	return nil
}

// loadPersisted reads the chain store. Blocks that do not decode come back as zero
// blocks and their positions are listed in unreadable; only I/O failures are errors.
func (m *Manager) loadPersisted(ctx context.Context) ([]Block, []int, error) {
	blocks, err := m.store.Load(ctx)
	var corrupt *CorruptError
	if errors.As(err, &corrupt) {
		logrus.Warnf("persisted chain does not decode: %v", corrupt)
		return corrupt.Blocks, corrupt.Indices, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return blocks, nil, nil
}

// loadKnownGood returns the persisted backup, or nil when no backup store is
// configured or the backup is empty, unreadable or itself invalid.
func (m *Manager) loadKnownGood(ctx context.Context) ([]Block, error) {
	if m.backupStore == nil {
		return nil, nil
	}
	backup, err := m.backupStore.Load(ctx)
	var corrupt *CorruptError
	if errors.As(err, &corrupt) {
		logrus.Errorf("chain backup does not decode: %v", corrupt)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(backup) == 0 {
		return nil, nil
	}
	if ok, tampered := validateBlocks(backup); !ok {
		logrus.Errorf("chain backup failed validation at blocks %v", tampered)
		return nil, nil
	}
	return backup, nil
}

// reference is the chain Validate compares against and Restore writes back.
func (m *Manager) reference(ctx context.Context) ([]Block, error) {
	if m.backupStore != nil {
		return m.loadKnownGood(ctx)
	}
	if m.snapshot == nil {
		return nil, nil
	}
	return m.snapshot.Blocks(), nil
}

func (m *Manager) saveBackup(ctx context.Context, blocks []Block) error {
	if m.backupStore == nil {
		return nil
	}
	return m.backupStore.Save(ctx, blocks)
}

// sync adopts the persisted backup when another process sharing the stores has moved
// the chain since this manager last wrote. Callers hold the write lock.
func (m *Manager) sync(ctx context.Context) error {
	known, err := m.loadKnownGood(ctx)
	if err != nil {
		return err
	}
	if known == nil || EqualBlocks(known, m.blocks) {
		return nil
	}
	logrus.Infof("chain moved to %d blocks outside this process, reloading", len(known))
	m.blocks = known
	m.snapshot = NewSnapshot(known, m.now())
	return nil
}

// Refresh reloads the shared backup so Blocks, Head, Len and Snapshot reflect writes
// made by other processes.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sync(ctx); err != nil {
		return persistenceError("failed to load chain backup", err)
	}
	return nil
}

// Append mines a block carrying payload on top of the current head, persists it and
// refreshes the snapshot. It fails with a mining timeout when no nonce within the
// iteration bound meets difficulty. On any failure nothing stays written.
func (m *Manager) Append(ctx context.Context, payload []model.Transaction, difficulty uint) (Block, error) {
	if difficulty > MaxDifficulty {
		return Block{}, apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("difficulty must be at most %d", MaxDifficulty), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot == nil {
		return Block{}, apierror.NewAPIError(apierror.ErrInternalServer, "chain manager is not initialised", nil)
	}
	if err := m.sync(ctx); err != nil {
		return Block{}, persistenceError("failed to load chain backup", err)
	}

	txs := make([]model.Transaction, len(payload))
	copy(txs, payload)

	head := m.blocks[len(m.blocks)-1]
	candidate := Block{
		Index:        head.Index + 1,
		Timestamp:    m.now().UTC(),
		Transactions: txs,
		PreviousHash: head.Hash,
	}

	block, err := mine(ctx, candidate, difficulty, m.maxIterations)
	if err != nil {
		return Block{}, err
	}

	if err := m.store.Append(ctx, block); err != nil {
		return Block{}, persistenceError("failed to persist block", err)
	}

	// The backup is written after the chain store so that it never runs ahead of it.
	next := append(cloneBlocks(m.blocks), block)
	if err := m.saveBackup(ctx, next); err != nil {
		if derr := m.store.DropHead(context.WithoutCancel(ctx), block.Hash); derr != nil {
			logrus.Errorf("failed to roll back block %d after backup failure: %v", block.Index, derr)
		}
		return Block{}, persistenceError("failed to persist chain backup", err)
	}

	m.blocks = next
	m.snapshot = NewSnapshot(next, m.now())
	return block.clone(), nil
}

// Validate reads the persisted chain and reports whether it is intact, along with the
// ascending indices of every block that fails its hash or link check, does not decode,
// differs from the known-good copy or is missing from the persisted chain. It never
// writes.
func (m *Manager) Validate(ctx context.Context) (bool, []int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	persisted, unreadable, err := m.loadPersisted(ctx)
	if err != nil {
		return false, nil, persistenceError("failed to load chain", err)
	}
	known, err := m.reference(ctx)
	if err != nil {
		return false, nil, persistenceError("failed to load chain backup", err)
	}

	tampered := inspect(persisted, unreadable, known)
	return len(tampered) == 0, tampered, nil
}

// Restore replaces the chain, in memory and on disk, with the known-good copy: the
// persisted backup when a backup store is configured, otherwise the in-memory snapshot.
func (m *Manager) Restore(ctx context.Context) ([]Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blocks, err := m.reference(ctx)
	if err != nil {
		return nil, persistenceError("failed to load chain backup", err)
	}
	if blocks == nil {
		return nil, ErrNoBackupAvailable
	}

	if err := m.store.Save(ctx, blocks); err != nil {
		return nil, persistenceError("failed to persist restored chain", err)
	}

	m.blocks = cloneBlocks(blocks)
	if m.snapshot == nil || !EqualBlocks(m.snapshot.Blocks(), blocks) {
		m.snapshot = NewSnapshot(blocks, m.now())
	}
	logrus.Infof("chain restored from snapshot taken at %s (%d blocks)", m.snapshot.TakenAt().Format(time.RFC3339), len(blocks))
	return cloneBlocks(blocks), nil
}

// RevertHead drops the head block if its hash matches. It undoes an Append whose
// enclosing operation could not commit.
func (m *Manager) RevertHead(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sync(ctx); err != nil {
		return persistenceError("failed to load chain backup", err)
	}

	n := len(m.blocks)
	if n <= 1 || m.blocks[n-1].Hash != hash {
		return apierror.NewAPIError(apierror.ErrConflict, "head block does not match, refusing to revert", nil)
	}

	// The backup shrinks first so that it never runs ahead of the chain store.
	prev := cloneBlocks(m.blocks[:n-1])
	if err := m.saveBackup(ctx, prev); err != nil {
		return persistenceError("failed to persist reverted backup", err)
	}
	if err := m.store.DropHead(ctx, hash); err != nil {
		if berr := m.saveBackup(context.WithoutCancel(ctx), m.blocks); berr != nil {
			logrus.Errorf("failed to restore chain backup after aborted revert: %v", berr)
		}
		return persistenceError("failed to persist reverted chain", err)
	}

	m.blocks = prev
	m.snapshot = NewSnapshot(prev, m.now())
	return nil
}

// Blocks returns a copy of the in-memory chain.
func (m *Manager) Blocks() []Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneBlocks(m.blocks)
}

func (m *Manager) Head() Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.blocks) == 0 {
		return Block{}
	}
	return m.blocks[len(m.blocks)-1].clone()
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// Snapshot returns the current backup snapshot, or nil before Init.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

func (m *Manager) Close() error {
	err := m.store.Close()
	if m.backupStore != nil {
		if berr := m.backupStore.Close(); err == nil {
			err = berr
		}
	}
	return err
}

// inspect lists, in ascending order, every persisted block that fails validation, does
// not decode, differs from known or is missing although known has it. A nil known
// skips the comparison.
func inspect(persisted []Block, unreadable []int, known []Block) []int {
	flagged := map[int]struct{}{}
	for _, i := range unreadable {
		flagged[i] = struct{}{}
	}
	if valid, tampered := validateBlocks(persisted); !valid {
		for _, i := range tampered {
			// An undecodable predecessor says nothing about this block's own link.
			if isUnreadable(unreadable, i-1) && !isUnreadable(unreadable, i) &&
				persisted[i].ComputeHash() == persisted[i].Hash {
				continue
			}
			flagged[i] = struct{}{}
		}
	}
	for i := range known {
		if i >= len(persisted) || !persisted[i].Equal(known[i]) {
			flagged[i] = struct{}{}
		}
	}

	indices := make([]int, 0, len(flagged))
	for i := range flagged {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

func isUnreadable(unreadable []int, i int) bool {
	for _, u := range unreadable {
		if u == i {
			return true
		}
	}
	return false
}
