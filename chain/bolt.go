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
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	BlocksBucket = "blocks"
	BackupBucket = "backup"
)

// BoltStore keeps one block per key in a bbolt bucket, keyed by the big-endian block
// index so that cursor order is chain order. Appends touch a single key.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
	owned  bool
}

// OpenBoltDB opens (or creates) the bbolt file at path.
func OpenBoltDB(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s", path)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt db %s", path)
	}
	return db, nil
}

// NewBoltStore uses bucket inside a database owned by the caller. Several stores may
// share one database; Close leaves it open.
func NewBoltStore(db *bolt.DB, bucket string) (*BoltStore, error) {
	name := []byte(bucket)
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create bucket %s", bucket)
	}
	return &BoltStore{db: db, bucket: name}, nil
}

// OpenBoltStore opens path and returns a store that closes the database on Close.
func OpenBoltStore(path, bucket string) (*BoltStore, error) {
	db, err := OpenBoltDB(path)
	if err != nil {
		return nil, err
	}
	store, err := NewBoltStore(db, bucket)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// OpenBoltStores opens path and returns the chain store and its backup store, kept
// in separate buckets of the same file. Closing the chain store closes the file.
func OpenBoltStores(path string) (*BoltStore, *BoltStore, error) {
	db, err := OpenBoltDB(path)
	if err != nil {
		return nil, nil, err
	}
	blocks, err := NewBoltStore(db, BlocksBucket)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	backup, err := NewBoltStore(db, BackupBucket)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	blocks.owned = true
	return blocks, backup, nil
}

func blockKey(index int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(index))
	return key
}

func (s *BoltStore) Load(_ context.Context) ([]Block, error) {
	blocks := []Block{}
	var corrupt *CorruptError
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			blocks = append(blocks, decodeBlock(v, len(blocks), &corrupt))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if corrupt != nil {
		corrupt.Blocks = blocks
		return nil, corrupt
	}
	return blocks, nil
}

func (s *BoltStore) Save(_ context.Context, blocks []Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return errors.Wrap(err, "clear blocks")
		}
		b, err := tx.CreateBucket(s.bucket)
		if err != nil {
			return errors.Wrap(err, "recreate blocks bucket")
		}
		for i, block := range blocks {
			data, err := json.Marshal(block)
			if err != nil {
				return errors.Wrapf(err, "encode block %d", block.Index)
			}
			// Keys follow position so that a tampered index field cannot reorder the chain.
			if err := b.Put(blockKey(int64(i)), data); err != nil {
				return errors.Wrapf(err, "put block %d", block.Index)
			}
		}
		return nil
	})
}

func (s *BoltStore) Append(_ context.Context, block Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		data, err := json.Marshal(block)
		if err != nil {
			return errors.Wrapf(err, "encode block %d", block.Index)
		}
		next := int64(0)
		if k, _ := b.Cursor().Last(); k != nil {
			next = int64(binary.BigEndian.Uint64(k)) + 1
		}
		return b.Put(blockKey(next), data)
	})
}

func (s *BoltStore) DropHead(_ context.Context, hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errHeadMismatch
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return errHeadMismatch
		}
		var head struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(v, &head); err != nil || head.Hash != hash {
			return errHeadMismatch
		}
		return b.Delete(k)
	})
}

func (s *BoltStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
