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
	"fmt"

	"github.com/paychain-labs/paychain/chain"
	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/internal/notification"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ReconcileChain drops head blocks whose transfers never reached the ledger. Such
// blocks are left behind when a process stops between the chain append and the SQL
// commit. It returns the number of blocks dropped.
func (p *Paychain) ReconcileChain(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ReconcileChain")
	defer span.End()

	unlock, err := p.acquireLocks(ctx)
	if err != nil {
		return 0, logAndRecordError(span, "failed to acquire chain lock", err)
	}
	defer unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.chain.Refresh(ctx); err != nil {
		return 0, logAndRecordError(span, "failed to refresh chain", err)
	}

	dropped := 0
	for {
		head := p.chain.Head()
		if head.Index == 0 {
			break
		}
		ok, err := p.committed(ctx, head)
		if err != nil {
			return dropped, logAndRecordError(span, "failed to look up ledger entries of head block", err)
		}
		if ok {
			break
		}
		if err := p.chain.RevertHead(ctx, head.Hash); err != nil {
			return dropped, logAndRecordError(span, "failed to drop uncommitted block", err)
		}
		dropped++
		logrus.WithFields(logrus.Fields{
			"block_index": head.Index,
			"block_hash":  head.Hash,
		}).Warn("dropped block with no committed ledger entry")
	}

	span.SetAttributes(attribute.Int("chain.dropped_blocks", dropped))
	if dropped > 0 {
		chainLength.Set(float64(p.chain.Len()))
		notification.NotifyError(fmt.Errorf("dropped %d chain blocks whose transfers never committed", dropped))
	}
	return dropped, nil
}

// committed reports whether any transaction of block is in the ledger with block's hash.
func (p *Paychain) committed(ctx context.Context, block chain.Block) (bool, error) {
	for _, txn := range block.Transactions {
		entry, err := p.datasource.GetTransaction(ctx, txn.TransactionID)
		if apierror.IsCode(err, apierror.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if entry.BlockHash != nil && *entry.BlockHash == block.Hash {
			return true, nil
		}
	}
	return false, nil
}
