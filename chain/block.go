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

// Package chain keeps the hash-linked, proof-of-work block chain that gives paychain
// its tamper evidence. A Manager owns the chain, a Store persists it and a Snapshot
// holds the last known-good copy used as the restore target.
package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/paychain-labs/paychain/model"
)

const (
	// ZeroHash is the previous hash of the genesis block.
	ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

	// MaxDifficulty is the length of a hex encoded SHA-256 digest.
	MaxDifficulty = 64
)

// GenesisTimestamp is fixed so every chain starts from the same genesis block.
var GenesisTimestamp = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Block is one link of the chain. Hash covers every other field.
type Block struct {
	Index        int64               `json:"index"`
	Timestamp    time.Time           `json:"timestamp"`
	Transactions []model.Transaction `json:"transactions"`
	PreviousHash string              `json:"previous_hash"`
	Nonce        uint64              `json:"nonce"`
	Hash         string              `json:"hash"`
}

// Genesis returns the canonical first block.
func Genesis() Block {
	b := Block{
		Index:        0,
		Timestamp:    GenesisTimestamp,
		Transactions: []model.Transaction{},
		PreviousHash: ZeroHash,
		Nonce:        0,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash returns the lower-case hex SHA-256 of the block's canonical encoding:
//
//	{"index":<int>,"timestamp":"<RFC3339Nano, UTC>","transactions":<array>,"previous_hash":"<hex>","nonce":<uint>}
//
// Transactions use the JSON field order of model.Transaction with UTC timestamps and an
// empty payload encodes as []. No whitespace is emitted.
func (b Block) ComputeHash() string {
	prefix, err := b.hashPrefix()
	if err != nil {
		return ""
	}
	return hashWithNonce(prefix, b.Nonce)
}

// hashPrefix is the canonical encoding up to and including `"nonce":`, so that mining
// only re-hashes the nonce digits.
func (b Block) hashPrefix() ([]byte, error) {
	txs := make([]model.Transaction, len(b.Transactions))
	for i, txn := range b.Transactions {
		txn.Timestamp = txn.Timestamp.UTC()
		txs[i] = txn
	}

	encodedTxs, err := json.Marshal(txs)
	if err != nil {
		return nil, err
	}
	encodedTimestamp, err := json.Marshal(b.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	encodedPrev, err := json.Marshal(b.PreviousHash)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"index":`)
	buf.WriteString(strconv.FormatInt(b.Index, 10))
	buf.WriteString(`,"timestamp":`)
	buf.Write(encodedTimestamp)
	buf.WriteString(`,"transactions":`)
	buf.Write(encodedTxs)
	buf.WriteString(`,"previous_hash":`)
	buf.Write(encodedPrev)
	buf.WriteString(`,"nonce":`)
	return buf.Bytes(), nil
}

func hashWithNonce(prefix []byte, nonce uint64) string {
	h := sha256.New()
	h.Write(prefix)
	h.Write([]byte(strconv.FormatUint(nonce, 10)))
	h.Write([]byte("}"))
	return hex.EncodeToString(h.Sum(nil))
}

// MeetsDifficulty reports whether hash starts with difficulty hex zeros.
func MeetsDifficulty(hash string, difficulty uint) bool {
	if difficulty > MaxDifficulty {
		return false
	}
	return strings.HasPrefix(hash, strings.Repeat("0", int(difficulty)))
}

// Equal compares blocks field by field. Timestamps are compared as instants.
func (b Block) Equal(o Block) bool {
	if b.Index != o.Index || !b.Timestamp.Equal(o.Timestamp) || b.PreviousHash != o.PreviousHash ||
		b.Nonce != o.Nonce || b.Hash != o.Hash || len(b.Transactions) != len(o.Transactions) {
		return false
	}
	for i := range b.Transactions {
		if !b.Transactions[i].Equal(o.Transactions[i]) {
			return false
		}
	}
	return true
}

func (b Block) clone() Block {
	c := b
	c.Transactions = make([]model.Transaction, len(b.Transactions))
	copy(c.Transactions, b.Transactions)
	return c
}

func cloneBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.clone()
	}
	return out
}

// EqualBlocks reports whether two chains are identical block for block.
func EqualBlocks(a, b []Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// validateBlocks checks the genesis block against the canonical one, then walks from
// index 1 checking each block's own hash and its link to the predecessor's stored hash.
// Every failing index appears once, in ascending order.
func validateBlocks(blocks []Block) (bool, []int) {
	tampered := []int{}
	if len(blocks) == 0 {
		return false, []int{0}
	}

	if !blocks[0].Equal(Genesis()) {
		tampered = append(tampered, 0)
	}

	for i := 1; i < len(blocks); i++ {
		b := blocks[i]
		if b.Index != int64(i) || b.ComputeHash() != b.Hash || b.PreviousHash != blocks[i-1].Hash {
			tampered = append(tampered, i)
		}
	}

	return len(tampered) == 0, tampered
}
