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
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/model"
)

const testDifficulty = 2

type fixture struct {
	dir     string
	store   *FileStore
	backup  *FileStore
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "chain.json"))
	require.NoError(t, err)
	backup, err := NewFileStore(filepath.Join(dir, "chain.backup.json"))
	require.NoError(t, err)

	m := NewManager(store, WithBackupStore(backup))
	require.NoError(t, m.Init(context.Background()))
	return &fixture{dir: dir, store: store, backup: backup, manager: m}
}

func (f *fixture) appendN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.manager.Append(context.Background(), []model.Transaction{testRecord(int64(10 * (i + 1)))}, testDifficulty)
		require.NoError(t, err)
	}
}

func (f *fixture) tamper(t *testing.T, mutate func(blocks []Block)) {
	t.Helper()
	ctx := context.Background()
	blocks, err := f.store.Load(ctx)
	require.NoError(t, err)
	mutate(blocks)
	require.NoError(t, f.store.Save(ctx, blocks))
}

func TestInitCreatesGenesis(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 1, f.manager.Len())
	assert.True(t, f.manager.Head().Equal(Genesis()))

	persisted, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, EqualBlocks([]Block{Genesis()}, persisted))

	backup, err := f.backup.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, EqualBlocks(persisted, backup))
	assert.Equal(t, 1, f.manager.Snapshot().Len())
}

func TestFreshChainIsValid(t *testing.T) {
	f := newFixture(t)

	valid, tampered, err := f.manager.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, tampered)
}

func TestInitLoadsExistingChain(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 3)

	reopened := NewManager(f.store, WithBackupStore(f.backup))
	require.NoError(t, reopened.Init(context.Background()))
	assert.Equal(t, 4, reopened.Len())
	assert.True(t, EqualBlocks(f.manager.Blocks(), reopened.Blocks()))
}

func TestAppendLinksMinesAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	genesis := f.manager.Head()
	record := testRecord(30)

	block, err := f.manager.Append(ctx, []model.Transaction{record}, testDifficulty)
	require.NoError(t, err)

	assert.Equal(t, int64(1), block.Index)
	assert.Equal(t, genesis.Hash, block.PreviousHash)
	assert.True(t, MeetsDifficulty(block.Hash, testDifficulty))
	assert.Equal(t, block.ComputeHash(), block.Hash)
	require.Len(t, block.Transactions, 1)
	assert.True(t, record.Equal(block.Transactions[0]))

	persisted, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, EqualBlocks(f.manager.Blocks(), persisted))

	// The snapshot follows every successful append.
	assert.True(t, f.manager.Snapshot().Equal(NewSnapshot(persisted, block.Timestamp)))

	valid, tampered, err := f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, tampered)
}

func TestAppendMiningTimeoutLeavesChainUntouched(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "chain.json"))
	require.NoError(t, err)
	m := NewManager(store, WithMaxIterations(1))
	require.NoError(t, m.Init(context.Background()))
	before := m.Snapshot()

	_, err = m.Append(context.Background(), []model.Transaction{testRecord(1)}, 8)
	require.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrMiningTimeout))

	assert.Equal(t, 1, m.Len())
	assert.Same(t, before, m.Snapshot())
	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestAppendHonoursCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.manager.Append(ctx, []model.Transaction{testRecord(1)}, testDifficulty)
	assert.True(t, apierror.IsCode(err, apierror.ErrMiningTimeout))
	assert.Equal(t, 1, f.manager.Len())
}

func TestAppendRejectsImpossibleDifficulty(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Append(context.Background(), nil, MaxDifficulty+1)
	assert.True(t, apierror.IsCode(err, apierror.ErrValidation))
}

func TestValidateReportsOnlyTheTamperedBlock(t *testing.T) {
	const k = 2
	tests := []struct {
		name   string
		mutate func(b *Block)
	}{
		{name: "payload amount", mutate: func(b *Block) { b.Transactions[0].Amount = 9999 }},
		{name: "payload destination", mutate: func(b *Block) { b.Transactions[0].ToAccount = "attacker" }},
		{name: "nonce", mutate: func(b *Block) { b.Nonce++ }},
		{name: "previous hash", mutate: func(b *Block) { b.PreviousHash = ZeroHash }},
		{name: "timestamp", mutate: func(b *Block) { b.Timestamp = b.Timestamp.Add(-time.Hour) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.appendN(t, 3)
			f.tamper(t, func(blocks []Block) { tt.mutate(&blocks[k]) })

			valid, tampered, err := f.manager.Validate(context.Background())
			require.NoError(t, err)
			assert.False(t, valid)
			assert.Equal(t, []int{k}, tampered)
		})
	}
}

func TestValidateStoredHashOfHead(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 3)
	f.tamper(t, func(blocks []Block) { blocks[3].Hash = ZeroHash })

	valid, tampered, err := f.manager.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{3}, tampered)
}

func TestValidateStoredHashOfInnerBlockBreaksSuccessorLink(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 3)
	f.tamper(t, func(blocks []Block) { blocks[1].Hash = ZeroHash })

	_, tampered, err := f.manager.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, tampered)
}

func TestValidateRehashedBlockBreaksSuccessorLink(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 3)
	f.tamper(t, func(blocks []Block) {
		blocks[1].Transactions[0].Amount = 9999
		blocks[1].Hash = blocks[1].ComputeHash()
	})

	_, tampered, err := f.manager.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, tampered)
}

func TestValidateDetectsGenesisTampering(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 1)
	f.tamper(t, func(blocks []Block) { blocks[0].Transactions = []model.Transaction{testRecord(1)} })

	_, tampered, err := f.manager.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, tampered)
}

func TestValidateDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	f.appendN(t, 1)
	f.tamper(t, func(blocks []Block) { blocks[1].Transactions[0].Amount = 9999 })
	before, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)

	_, _, err = f.manager.Validate(context.Background())
	require.NoError(t, err)

	after, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRestoreMatchesSnapshotInMemoryAndOnDisk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, 2)
	snapshot := f.manager.Snapshot()

	f.tamper(t, func(blocks []Block) { blocks[1].Transactions[0].Amount = 9999 })

	restored, err := f.manager.Restore(ctx)
	require.NoError(t, err)

	persisted, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, snapshot.Equal(NewSnapshot(restored, snapshot.TakenAt())))
	assert.True(t, snapshot.Equal(NewSnapshot(persisted, snapshot.TakenAt())))
	assert.True(t, snapshot.Equal(NewSnapshot(f.manager.Blocks(), snapshot.TakenAt())))
	assert.Equal(t, int64(10), persisted[1].Transactions[0].Amount)

	valid, tampered, err := f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, tampered)
}

func TestRestoreOnRawFileEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.Append(ctx, []model.Transaction{testRecord(30)}, testDifficulty)
	require.NoError(t, err)

	// Edit the JSON document directly, the way an operator with disk access would.
	raw, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)
	var doc []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	txs := doc[1]["transactions"].([]interface{})
	txs[0].(map[string]interface{})["amount"] = 9999
	edited, err := json.MarshalIndent(doc, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.store.Path(), edited, 0o600))

	valid, tampered, err := f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{1}, tampered)

	_, err = f.manager.Restore(ctx)
	require.NoError(t, err)
	persisted, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), persisted[1].Transactions[0].Amount)
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "chain.json"))
	require.NoError(t, err)
	m := NewManager(store)

	_, err = m.Restore(context.Background())
	assert.True(t, apierror.IsCode(err, apierror.ErrNoBackupAvailable))
}

func TestInitContinuesFromBackupWhenChainTampered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, 2)
	good := f.manager.Blocks()
	f.tamper(t, func(blocks []Block) { blocks[2].Transactions[0].Amount = 9999 })

	reopened := NewManager(f.store, WithBackupStore(f.backup))
	require.NoError(t, reopened.Init(ctx))
	assert.True(t, EqualBlocks(good, reopened.Blocks()))

	// Tampering stays visible until an explicit restore.
	valid, tampered, err := reopened.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{2}, tampered)

	_, err = reopened.Restore(ctx)
	require.NoError(t, err)
	valid, _, err = reopened.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestInitFailsOnTamperedChainWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "chain.json"))
	require.NoError(t, err)
	m := NewManager(store)
	require.NoError(t, m.Init(context.Background()))
	_, err = m.Append(context.Background(), []model.Transaction{testRecord(5)}, testDifficulty)
	require.NoError(t, err)

	blocks, err := store.Load(context.Background())
	require.NoError(t, err)
	blocks[1].Nonce++
	require.NoError(t, store.Save(context.Background(), blocks))

	err = NewManager(store).Init(context.Background())
	assert.True(t, apierror.IsCode(err, apierror.ErrIntegrity))
}

func TestAppendAfterExternalEditKeepsEvidence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, 1)
	f.tamper(t, func(blocks []Block) { blocks[1].Transactions[0].Amount = 9999 })

	f.appendN(t, 1)

	valid, tampered, err := f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{1}, tampered)

	_, err = f.manager.Restore(ctx)
	require.NoError(t, err)
	persisted, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 3)
	assert.Equal(t, int64(10), persisted[1].Transactions[0].Amount)
}

func TestRevertHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, 1)
	before := f.manager.Blocks()

	block, err := f.manager.Append(ctx, []model.Transaction{testRecord(7)}, testDifficulty)
	require.NoError(t, err)

	assert.True(t, apierror.IsCode(f.manager.RevertHead(ctx, "not-the-head"), apierror.ErrConflict))
	require.NoError(t, f.manager.RevertHead(ctx, block.Hash))

	assert.True(t, EqualBlocks(before, f.manager.Blocks()))
	persisted, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, EqualBlocks(before, persisted))
	assert.Equal(t, len(before), f.manager.Snapshot().Len())
}

func TestManagerWithBoltStore(t *testing.T) {
	ctx := context.Background()
	db, err := OpenBoltDB(filepath.Join(t.TempDir(), "chain.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	blocksStore, err := NewBoltStore(db, BlocksBucket)
	require.NoError(t, err)
	backupStore, err := NewBoltStore(db, BackupBucket)
	require.NoError(t, err)

	m := NewManager(blocksStore, WithBackupStore(backupStore))
	require.NoError(t, m.Init(ctx))
	for i := 0; i < 3; i++ {
		_, err := m.Append(ctx, []model.Transaction{testRecord(int64(i + 1))}, testDifficulty)
		require.NoError(t, err)
	}

	blocks, err := blocksStore.Load(ctx)
	require.NoError(t, err)
	blocks[2].Transactions[0].Amount = 9999
	require.NoError(t, blocksStore.Save(ctx, blocks))

	valid, tampered, err := m.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{2}, tampered)

	_, err = m.Restore(ctx)
	require.NoError(t, err)
	valid, _, err = m.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.NoError(t, m.Close())
}

func TestValidateAndRestoreUndecodableBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.manager.Append(ctx, []model.Transaction{testRecord(30)}, testDifficulty)
	require.NoError(t, err)

	editFile(t, f.store.Path(), `"amount": 30`, `"amount": "9999"`)

	valid, tampered, err := f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{1}, tampered)

	// Appends keep working and keep the evidence.
	_, err = f.manager.Append(ctx, []model.Transaction{testRecord(5)}, testDifficulty)
	require.NoError(t, err)
	_, tampered, err = f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, tampered)

	restored, err := f.manager.Restore(ctx)
	require.NoError(t, err)
	assert.Len(t, restored, 3)
	persisted, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), persisted[1].Transactions[0].Amount)

	valid, _, err = f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestValidateAndRestoreUnparseableChainFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, 2)
	require.NoError(t, os.WriteFile(f.store.Path(), []byte(`[{"index": 0,`), 0o600))

	valid, tampered, err := f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{0, 1, 2}, tampered)

	_, err = f.manager.Restore(ctx)
	require.NoError(t, err)
	valid, _, err = f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestInitFallsBackToBackupOnUndecodableChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, 1)
	good := f.manager.Blocks()
	editFile(t, f.store.Path(), `"amount": 10`, `"amount": "ten"`)

	reopened := NewManager(f.store, WithBackupStore(f.backup))
	require.NoError(t, reopened.Init(ctx))
	assert.True(t, EqualBlocks(good, reopened.Blocks()))

	_, tampered, err := reopened.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, tampered)
}

func TestValidateReportsMissingBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.appendN(t, 3)
	blocks, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, f.store.Save(ctx, blocks[:2]))

	valid, tampered, err := f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{2, 3}, tampered)

	restored, err := f.manager.Restore(ctx)
	require.NoError(t, err)
	assert.Len(t, restored, 4)
}

// openShared opens a second manager over the fixture's files, the way another
// process would.
func (f *fixture) openShared(t *testing.T) *Manager {
	t.Helper()
	store, err := NewFileStore(f.store.Path())
	require.NoError(t, err)
	backup, err := NewFileStore(f.backup.Path())
	require.NoError(t, err)
	m := NewManager(store, WithBackupStore(backup))
	require.NoError(t, m.Init(context.Background()))
	return m
}

func TestRestoreFromAnotherManagerKeepsCommittedBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	server := f.manager
	worker := f.openShared(t)

	f.appendN(t, 3)
	require.Equal(t, 1, worker.Len())
	f.tamper(t, func(blocks []Block) { blocks[2].Transactions[0].Amount = 9999 })

	valid, tampered, err := worker.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []int{2}, tampered)

	restored, err := worker.Restore(ctx)
	require.NoError(t, err)
	assert.Len(t, restored, 4)
	assert.True(t, EqualBlocks(server.Blocks(), restored))
	assert.Equal(t, 4, worker.Len())

	_, err = server.Append(ctx, []model.Transaction{testRecord(40)}, testDifficulty)
	require.NoError(t, err)

	for _, m := range []*Manager{server, worker} {
		valid, tampered, err := m.Validate(ctx)
		require.NoError(t, err)
		assert.True(t, valid)
		assert.Empty(t, tampered)
	}

	require.NoError(t, worker.Refresh(ctx))
	assert.Equal(t, 5, worker.Len())
	assert.Equal(t, 5, worker.Snapshot().Len())
}

func TestManagersAppendingToSharedStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.openShared(t)

	a, err := f.manager.Append(ctx, []model.Transaction{testRecord(1)}, testDifficulty)
	require.NoError(t, err)
	b, err := other.Append(ctx, []model.Transaction{testRecord(2)}, testDifficulty)
	require.NoError(t, err)
	c, err := f.manager.Append(ctx, []model.Transaction{testRecord(3)}, testDifficulty)
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.PreviousHash)
	assert.Equal(t, b.Hash, c.PreviousHash)
	assert.Equal(t, int64(3), c.Index)

	valid, tampered, err := other.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, tampered)
}

type faultyStore struct {
	Store
	appendErr error
	saveErr   error
	dropErr   error
}

func (s *faultyStore) Append(ctx context.Context, b Block) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Store.Append(ctx, b)
}

func (s *faultyStore) Save(ctx context.Context, blocks []Block) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.Save(ctx, blocks)
}

func (s *faultyStore) DropHead(ctx context.Context, hash string) error {
	if s.dropErr != nil {
		return s.dropErr
	}
	return s.Store.DropHead(ctx, hash)
}

type faultyFixture struct {
	*fixture
	primary *faultyStore
	backups *faultyStore
}

func newFaultyFixture(t *testing.T) *faultyFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "chain.json"))
	require.NoError(t, err)
	backup, err := NewFileStore(filepath.Join(dir, "chain.backup.json"))
	require.NoError(t, err)

	primary := &faultyStore{Store: store}
	backups := &faultyStore{Store: backup}
	m := NewManager(primary, WithBackupStore(backups))
	require.NoError(t, m.Init(context.Background()))
	return &faultyFixture{
		fixture: &fixture{dir: dir, store: store, backup: backup, manager: m},
		primary: primary,
		backups: backups,
	}
}

type diskState struct {
	chain    []byte
	backup   []byte
	length   int
	snapshot *Snapshot
}

func (f *faultyFixture) state(t *testing.T) diskState {
	t.Helper()
	chainBytes, err := os.ReadFile(f.store.Path())
	require.NoError(t, err)
	backupBytes, err := os.ReadFile(f.backup.Path())
	require.NoError(t, err)
	return diskState{chain: chainBytes, backup: backupBytes, length: f.manager.Len(), snapshot: f.manager.Snapshot()}
}

func (f *faultyFixture) assertUnchanged(t *testing.T, before diskState) {
	t.Helper()
	after := f.state(t)
	assert.Equal(t, before.chain, after.chain)
	assert.Equal(t, before.backup, after.backup)
	assert.Equal(t, before.length, after.length)
	assert.Same(t, before.snapshot, after.snapshot)
}

func TestAppendPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	diskFull := errors.New("no space left on device")
	tests := []struct {
		name   string
		inject func(f *faultyFixture)
	}{
		{name: "chain store", inject: func(f *faultyFixture) { f.primary.appendErr = diskFull }},
		{name: "backup store", inject: func(f *faultyFixture) { f.backups.saveErr = diskFull }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFaultyFixture(t)
			f.appendN(t, 2)
			before := f.state(t)
			tt.inject(f)

			_, err := f.manager.Append(context.Background(), []model.Transaction{testRecord(99)}, testDifficulty)
			require.Error(t, err)
			assert.True(t, apierror.IsCode(err, apierror.ErrPersistence))
			f.assertUnchanged(t, before)
		})
	}
}

func TestRestorePersistenceFailureLeavesStateUnchanged(t *testing.T) {
	f := newFaultyFixture(t)
	ctx := context.Background()
	f.appendN(t, 2)
	f.tamper(t, func(blocks []Block) { blocks[1].Transactions[0].Amount = 9999 })
	before := f.state(t)
	f.primary.saveErr = errors.New("read-only file system")

	_, err := f.manager.Restore(ctx)
	require.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrPersistence))
	f.assertUnchanged(t, before)

	_, tampered, err := f.manager.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, tampered)
}

func TestRevertHeadPersistenceFailureLeavesChainUnchanged(t *testing.T) {
	f := newFaultyFixture(t)
	ctx := context.Background()
	f.appendN(t, 1)
	block, err := f.manager.Append(ctx, []model.Transaction{testRecord(7)}, testDifficulty)
	require.NoError(t, err)
	before := f.state(t)
	f.primary.dropErr = errors.New("read-only file system")

	err = f.manager.RevertHead(ctx, block.Hash)
	assert.True(t, apierror.IsCode(err, apierror.ErrPersistence))
	assert.Equal(t, before.chain, f.state(t).chain)
	assert.Equal(t, before.length, f.manager.Len())

	backup, err := f.backup.Load(ctx)
	require.NoError(t, err)
	assert.True(t, EqualBlocks(f.manager.Blocks(), backup))
}
