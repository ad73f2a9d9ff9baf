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
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paychain-labs/paychain/model"
)

func testRecord(amount int64) model.Transaction {
	return model.Transaction{
		TransactionID: model.GenerateUUIDWithSuffix("txn"),
		Timestamp:     time.Now().UTC(),
		FromAccount:   gofakeit.UUID(),
		ToAccount:     gofakeit.UUID(),
		Amount:        amount,
		Status:        model.StatusCompleted,
		Category:      model.DefaultCategory,
	}
}

func TestGenesisIsDeterministic(t *testing.T) {
	a := Genesis()
	b := Genesis()
	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, ZeroHash, a.PreviousHash)
	assert.Equal(t, int64(0), a.Index)
	assert.Empty(t, a.Transactions)
	assert.Len(t, a.Hash, 64)
}

func TestComputeHashCanonicalEncoding(t *testing.T) {
	b := Block{
		Index:        1,
		Timestamp:    time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		Transactions: []model.Transaction{},
		PreviousHash: ZeroHash,
		Nonce:        7,
	}

	prefix, err := b.hashPrefix()
	require.NoError(t, err)
	expected := `{"index":1,"timestamp":"2024-05-01T12:30:00Z","transactions":[],"previous_hash":"` + ZeroHash + `","nonce":`
	assert.Equal(t, expected, string(prefix))

	// A nil payload encodes the same as an empty one.
	nilPayload := b
	nilPayload.Transactions = nil
	assert.Equal(t, b.ComputeHash(), nilPayload.ComputeHash())

	// The encoding is independent of the timestamp's location.
	shifted := b
	shifted.Timestamp = b.Timestamp.In(time.FixedZone("IST", 5*3600+1800))
	assert.Equal(t, b.ComputeHash(), shifted.ComputeHash())
}

func TestComputeHashCoversEveryField(t *testing.T) {
	base := Block{
		Index:        3,
		Timestamp:    time.Now().UTC(),
		Transactions: []model.Transaction{testRecord(30)},
		PreviousHash: Genesis().Hash,
		Nonce:        11,
	}
	h := base.ComputeHash()

	mutations := map[string]func(b *Block){
		"index":         func(b *Block) { b.Index++ },
		"timestamp":     func(b *Block) { b.Timestamp = b.Timestamp.Add(time.Nanosecond) },
		"amount":        func(b *Block) { b.Transactions[0].Amount = 9999 },
		"category":      func(b *Block) { b.Transactions[0].Category = "food" },
		"previous hash": func(b *Block) { b.PreviousHash = ZeroHash },
		"nonce":         func(b *Block) { b.Nonce++ },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := base.clone()
			mutate(&b)
			assert.NotEqual(t, h, b.ComputeHash())
		})
	}
}

func TestMine(t *testing.T) {
	b := Block{Index: 1, Timestamp: time.Now().UTC(), Transactions: []model.Transaction{testRecord(10)}, PreviousHash: Genesis().Hash}

	mined, err := mine(context.Background(), b, 2, DefaultMaxIterations)
	require.NoError(t, err)
	assert.True(t, MeetsDifficulty(mined.Hash, 2))
	assert.Equal(t, mined.ComputeHash(), mined.Hash)
}

func TestMeetsDifficulty(t *testing.T) {
	assert.True(t, MeetsDifficulty("00ab", 2))
	assert.True(t, MeetsDifficulty("abcd", 0))
	assert.False(t, MeetsDifficulty("0abc", 2))
	assert.False(t, MeetsDifficulty(ZeroHash, MaxDifficulty+1))
}

func TestValidateBlocksEmptyChain(t *testing.T) {
	valid, tampered := validateBlocks(nil)
	assert.False(t, valid)
	assert.Equal(t, []int{0}, tampered)
}

func TestSnapshotIsIsolatedFromSource(t *testing.T) {
	blocks := []Block{Genesis()}
	snap := NewSnapshot(blocks, time.Now())

	blocks[0].Hash = "changed"
	assert.Equal(t, Genesis().Hash, snap.Head().Hash)

	copied := snap.Blocks()
	copied[0].PreviousHash = "changed"
	assert.Equal(t, ZeroHash, snap.Head().PreviousHash)

	assert.True(t, snap.Equal(NewSnapshot([]Block{Genesis()}, time.Now().Add(time.Hour))))
	assert.False(t, snap.Equal(NewSnapshot([]Block{}, time.Now())))
	assert.False(t, snap.Equal(nil))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "data", "chain.json"))
	require.NoError(t, err)

	blocks, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, blocks)

	genesis := Genesis()
	require.NoError(t, store.Save(ctx, []Block{genesis}))

	next := Block{Index: 1, Timestamp: time.Now().UTC(), Transactions: []model.Transaction{testRecord(5)}, PreviousHash: genesis.Hash}
	next.Hash = next.ComputeHash()
	require.NoError(t, store.Append(ctx, next))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, EqualBlocks([]Block{genesis, next}, loaded))

	// No temp files are left behind.
	entries, err := filepath.Glob(filepath.Join(filepath.Dir(store.Path()), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "chain.db"), BlocksBucket)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	blocks := []Block{Genesis()}
	for i := 1; i < 300; i++ {
		b := Block{Index: int64(i), Timestamp: time.Now().UTC(), Transactions: []model.Transaction{}, PreviousHash: blocks[i-1].Hash}
		b.Hash = b.ComputeHash()
		blocks = append(blocks, b)
	}
	require.NoError(t, store.Save(ctx, blocks[:200]))
	for _, b := range blocks[200:] {
		require.NoError(t, store.Append(ctx, b))
	}

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, EqualBlocks(blocks, loaded))

	require.NoError(t, store.Save(ctx, blocks[:1]))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}
