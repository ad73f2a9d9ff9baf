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
	"strings"

	"github.com/paychain-labs/paychain/internal/apierror"
)

// ErrNoBackupAvailable is returned by Restore before a snapshot has been taken.
var ErrNoBackupAvailable = apierror.APIError{
	Code:    apierror.ErrNoBackupAvailable,
	Message: "no backup snapshot available",
}

func persistenceError(message string, err error) error {
	return apierror.NewAPIError(apierror.ErrPersistence, message, err)
}

func integrityError(indices []int) error {
	return apierror.NewAPIError(apierror.ErrIntegrity, fmt.Sprintf("chain failed validation at blocks %v", indices), indices)
}

// mine searches nonces from zero until the hash meets the difficulty, giving up after
// maxIterations attempts or when ctx is done.
func mine(ctx context.Context, b Block, difficulty uint, maxIterations uint64) (Block, error) {
	prefix, err := b.hashPrefix()
	if err != nil {
		return Block{}, persistenceError("failed to encode block", err)
	}

	target := strings.Repeat("0", int(difficulty))
	for nonce := uint64(0); nonce < maxIterations; nonce++ {
		if nonce%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return Block{}, apierror.APIError{
					Code:    apierror.ErrMiningTimeout,
					Message: "mining cancelled",
					Details: err.Error(),
				}
			}
		}
		hash := hashWithNonce(prefix, nonce)
		if strings.HasPrefix(hash, target) {
			b.Nonce = nonce
			b.Hash = hash
			return b, nil
		}
	}

	return Block{}, apierror.APIError{
		Code:    apierror.ErrMiningTimeout,
		Message: fmt.Sprintf("no nonce met difficulty %d within %d iterations", difficulty, maxIterations),
	}
}
