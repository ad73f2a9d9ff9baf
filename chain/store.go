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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Store persists the chain.
type Store interface {
	// Load returns the persisted chain, or an empty slice if nothing is stored yet. A
	// chain that cannot be decoded is reported as a *CorruptError.
	Load(ctx context.Context) ([]Block, error)
	// Save atomically replaces the persisted chain.
	Save(ctx context.Context, blocks []Block) error
	// Append atomically adds one block after the persisted head.
	Append(ctx context.Context, block Block) error
	// DropHead atomically removes the persisted head if its stored hash is hash,
	// leaving every other block as stored.
	DropHead(ctx context.Context, hash string) error
	Close() error
}

// CorruptError reports a persisted chain that does not decode. Blocks holds what did
// decode, with zero blocks standing in at the positions listed in Indices, so the
// chain can still be checked block by block.
type CorruptError struct {
	Blocks  []Block
	Indices []int
	Err     error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("chain store is unreadable at blocks %v: %v", e.Indices, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// decodeBlock decodes one stored block. On failure it records position i in corrupt,
// creating it when needed, and returns a zero block.
func decodeBlock(data []byte, i int, corrupt **CorruptError) Block {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		if *corrupt == nil {
			*corrupt = &CorruptError{Err: errors.Wrapf(err, "decode block %d", i)}
		}
		(*corrupt).Indices = append((*corrupt).Indices, i)
		return Block{}
	}
	return b
}

var errHeadMismatch = errors.New("persisted head does not match")

// FileStore keeps the chain as a JSON array in a single file. Every write goes to a
// temporary file in the same directory which is synced and renamed over the target, so
// readers never observe a partially written chain.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create chain directory for %s", path)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) ([]Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := f.loadRaw()
	if err != nil {
		return nil, err
	}
	var corrupt *CorruptError
	blocks := make([]Block, len(raw))
	for i, r := range raw {
		blocks[i] = decodeBlock(r, i, &corrupt)
	}
	if corrupt != nil {
		corrupt.Blocks = blocks
		return nil, corrupt
	}
	return blocks, nil
}

// loadRaw splits the file into its stored blocks without decoding them. A file that is
// not a JSON array is a *CorruptError at position 0.
func (f *FileStore) loadRaw() ([]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read chain file %s", f.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []json.RawMessage{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &CorruptError{
			Blocks:  []Block{},
			Indices: []int{0},
			Err:     errors.Wrapf(err, "decode chain file %s", f.path),
		}
	}
	return raw, nil
}

func (f *FileStore) Save(_ context.Context, blocks []Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if blocks == nil {
		blocks = []Block{}
	}
	data, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode chain")
	}
	return writeFileAtomic(f.path, data)
}

func (f *FileStore) saveRaw(raw []json.RawMessage) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode chain")
	}
	return writeFileAtomic(f.path, data)
}

// Append rewrites the file with block added. Blocks already on disk are carried over
// as stored, even ones that no longer decode, so an external edit stays visible to
// validation.
func (f *FileStore) Append(_ context.Context, block Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := f.loadRaw()
	if err != nil {
		return err
	}
	data, err := json.Marshal(block)
	if err != nil {
		return errors.Wrapf(err, "encode block %d", block.Index)
	}
	return f.saveRaw(append(raw, data))
}

func (f *FileStore) DropHead(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := f.loadRaw()
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return errHeadMismatch
	}
	var head struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(raw[len(raw)-1], &head); err != nil || head.Hash != hash {
		return errHeadMismatch
	}
	return f.saveRaw(raw[:len(raw)-1])
}

func (f *FileStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return errors.Wrapf(err, "rename %s to %s", tmpName, path)
	}
	return nil
}
