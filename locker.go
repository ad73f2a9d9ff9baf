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

package paychain

import (
	"context"

	redlock "github.com/paychain-labs/paychain/internal/lock"
	"github.com/paychain-labs/paychain/model"
	"github.com/sirupsen/logrus"
)

// chainLockKey serializes chain writes between processes sharing the chain stores.
const chainLockKey = "paychain:chain"

func accountLockKey(id string) string {
	return "paychain:account:" + id
}

// acquireLocks takes the chain lock plus the distributed locks of every real account
// touched by a transfer, in sorted order. Without Redis it is a no-op.
func (p *Paychain) acquireLocks(ctx context.Context, accounts ...string) (func(), error) {
	if p.redis == nil {
		return func() {}, nil
	}

	keys := make([]string, 0, len(accounts)+1)
	keys = append(keys, chainLockKey)
	for _, id := range accounts {
		if model.IsSink(id) {
			continue
		}
		keys = append(keys, accountLockKey(id))
	}

	locker := redlock.NewMultiLocker(p.redis, model.GenerateUUIDWithSuffix("loc"), keys...)
	if err := locker.WaitLock(ctx, p.lockTimeout, p.lockWait); err != nil {
		return nil, err
	}
	return func() {
		if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).Warn("failed to release paychain locks")
		}
	}, nil
}
