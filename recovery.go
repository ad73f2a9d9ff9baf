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
	"encoding/json"
	"time"

	"github.com/paychain-labs/paychain/chain"
	"github.com/paychain-labs/paychain/internal/notification"
	"github.com/paychain-labs/paychain/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const EventChainRestored = "chain.restored"

// RecoveryOutcome reports what a CheckAndRecover run found and did.
type RecoveryOutcome struct {
	Valid          bool              `json:"valid"`
	InvalidIndices []int             `json:"invalid_indices"`
	Restored       bool              `json:"restored"`
	RestoredLength int               `json:"restored_length,omitempty"`
	Audit          *model.AuditEntry `json:"audit,omitempty"`
}

// ValidationReport is the result of a read-only chain check.
type ValidationReport struct {
	Valid          bool  `json:"valid"`
	InvalidIndices []int `json:"invalid_indices"`
	Length         int   `json:"length"`
}

// ValidateChain checks the persisted chain without changing anything.
func (p *Paychain) ValidateChain(ctx context.Context) (*ValidationReport, error) {
	ctx, span := tracer.Start(ctx, "ValidateChain")
	defer span.End()

	if err := p.chain.Refresh(ctx); err != nil {
		return nil, logAndRecordError(span, "failed to refresh chain", err)
	}
	valid, indices, err := p.chain.Validate(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to validate chain", err)
	}
	if indices == nil {
		indices = []int{}
	}
	return &ValidationReport{Valid: valid, InvalidIndices: indices, Length: p.chain.Len()}, nil
}

// CheckAndRecover validates the chain and, when it has been tampered with, restores the
// backup snapshot, writes an audit record and alerts operators. Account balances and
// ledger history are never touched: the chain is evidence, not the source of truth.
func (p *Paychain) CheckAndRecover(ctx context.Context, actor string) (*RecoveryOutcome, error) {
	ctx, span := tracer.Start(ctx, "CheckAndRecover")
	defer span.End()

	unlock, err := p.acquireLocks(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to acquire chain lock", err)
	}
	defer unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	valid, indices, err := p.chain.Validate(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to validate chain", err)
	}
	if valid {
		return &RecoveryOutcome{Valid: true, InvalidIndices: []int{}}, nil
	}

	tamperDetections.Inc()
	span.SetAttributes(attribute.IntSlice("chain.invalid_indices", indices))

	outcome := &RecoveryOutcome{InvalidIndices: indices}
	blocks, err := p.chain.Restore(ctx)
	if err != nil {
		notification.NotifyTamper(context.WithoutCancel(ctx), notification.TamperAlert{
			InvalidIndices: indices,
			DetectedAt:     p.now().UTC(),
		})
		return nil, logAndRecordError(span, "failed to restore chain", err)
	}
	outcome.Restored = true
	outcome.RestoredLength = len(blocks)

	audit, err := p.audit(ctx, actor, indices)
	if err != nil {
		return nil, err
	}
	outcome.Audit = audit

	p.afterRestore(ctx, indices, blocks)
	return outcome, nil
}

// RestoreChain replaces the chain with the backup snapshot whether or not it
// validates. The restore is audited like an automatic one.
func (p *Paychain) RestoreChain(ctx context.Context, actor string) (*RecoveryOutcome, error) {
	ctx, span := tracer.Start(ctx, "RestoreChain")
	defer span.End()

	unlock, err := p.acquireLocks(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to acquire chain lock", err)
	}
	defer unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	valid, indices, err := p.chain.Validate(ctx)
	if err != nil {
		logrus.WithError(err).Warn("chain could not be validated before restore, restoring anyway")
		valid = false
	}
	if indices == nil {
		indices = []int{}
	}

	blocks, err := p.chain.Restore(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to restore chain", err)
	}

	audit, err := p.audit(ctx, actor, indices)
	if err != nil {
		return nil, err
	}

	if !valid {
		tamperDetections.Inc()
	}
	p.afterRestore(ctx, indices, blocks)
	return &RecoveryOutcome{
		Valid:          valid,
		InvalidIndices: indices,
		Restored:       true,
		RestoredLength: len(blocks),
		Audit:          audit,
	}, nil
}

func (p *Paychain) audit(ctx context.Context, actor string, indices []int) (*model.AuditEntry, error) {
	if actor == "" {
		actor = "unknown"
	}
	detail, err := json.Marshal(map[string]interface{}{"invalid_indices": indices})
	if err != nil {
		return nil, err
	}
	entry, err := p.datasource.RecordAuditLog(ctx, model.AuditEntry{
		AuditID:   model.GenerateUUIDWithSuffix("aud"),
		Timestamp: p.now().UTC(),
		Actor:     actor,
		Action:    model.ActionChainRestore,
		Detail:    string(detail),
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (p *Paychain) afterRestore(ctx context.Context, indices []int, blocks []chain.Block) {
	chainRestores.Inc()
	chainLength.Set(float64(len(blocks)))
	logrus.WithFields(logrus.Fields{
		"invalid_indices": indices,
		"length":          len(blocks),
	}).Warn("chain restored from backup snapshot")

	notification.NotifyTamper(context.WithoutCancel(ctx), notification.TamperAlert{
		InvalidIndices: indices,
		Restored:       true,
		RestoredLength: len(blocks),
		DetectedAt:     p.now().UTC(),
	})
	p.sendWebhookAsync(NewWebhook{Event: EventChainRestored, Payload: map[string]interface{}{
		"invalid_indices": indices,
		"length":          len(blocks),
		"restored_at":     p.now().UTC().Format(time.RFC3339Nano),
	}})
}

// GetAuditLogs returns recorded restores, most recent first.
func (p *Paychain) GetAuditLogs(ctx context.Context, limit, offset int) ([]model.AuditEntry, error) {
	return p.datasource.GetAuditLogs(ctx, limit, offset)
}
