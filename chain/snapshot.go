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

import "time"

// Snapshot is an immutable copy of the chain. Callers only ever see copies of the
// blocks it holds.
type Snapshot struct {
	blocks  []Block
	takenAt time.Time
}

// NewSnapshot deep-copies blocks.
func NewSnapshot(blocks []Block, takenAt time.Time) *Snapshot {
	return &Snapshot{blocks: cloneBlocks(blocks), takenAt: takenAt}
}

func (s *Snapshot) Blocks() []Block {
	return cloneBlocks(s.blocks)
}

func (s *Snapshot) Len() int {
	return len(s.blocks)
}

func (s *Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Head returns the last block of the snapshot.
func (s *Snapshot) Head() Block {
	return s.blocks[len(s.blocks)-1].clone()
}

// Equal reports whether both snapshots hold the same chain. The time the snapshot was
// taken is not part of equality.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return EqualBlocks(s.blocks, o.blocks)
}
