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
	"time"

	"github.com/paychain-labs/paychain/chain"
	"github.com/paychain-labs/paychain/database"
	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/internal/notification"
	"github.com/paychain-labs/paychain/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventTransferCompleted  = "transfer.completed"
	EventTransferSuspicious = "transfer.suspicious"
	EventTransferRejected   = "transfer.rejected"
)

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.WithError(err).Error(msg)
	return err
}

func validateTransfer(from, to string, amount int64) error {
	switch {
	case from == "" || to == "":
		return apierror.NewAPIError(apierror.ErrValidation, "source and destination accounts are required", nil)
	case model.IsSink(from):
		return apierror.NewAPIError(apierror.ErrValidation, fmt.Sprintf("'%s' cannot be debited", from), nil)
	case from == to:
		return apierror.NewAPIError(apierror.ErrValidation, "source and destination must differ", nil)
	case amount <= 0:
		return apierror.NewAPIError(apierror.ErrValidation, "amount must be greater than zero", nil)
	}
	return nil
}

// TransferFunds moves amount (minor units) from one account to another account or to
// a sink. Either the balances, the daily accumulator, the ledger row and the chain
// block all change, or none of them do.
func (p *Paychain) TransferFunds(ctx context.Context, from, to string, amount int64, category string) (*model.Receipt, error) {
	ctx, span := tracer.Start(ctx, "TransferFunds")
	defer span.End()
	span.SetAttributes(
		attribute.String("transfer.from", from),
		attribute.String("transfer.to", to),
		attribute.Int64("transfer.amount", amount),
	)

	start := time.Now()
	if category == "" {
		category = model.DefaultCategory
	}
	if err := validateTransfer(from, to, amount); err != nil {
		observeTransfer(outcomeOf(err), start)
		return nil, err
	}

	unlock, err := p.acquireLocks(ctx, from, to)
	if err != nil {
		observeTransfer("lock_error", start)
		return nil, logAndRecordError(span, "failed to acquire account locks", err)
	}
	defer unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	receipt, err := p.transfer(ctx, from, to, amount, category)
	observeTransfer(outcomeOf(err), start)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return receipt, nil
}

// PayBill sends amount from an account to the bill payment sink, recording the biller
// as the category.
func (p *Paychain) PayBill(ctx context.Context, from, biller string, amount int64) (*model.Receipt, error) {
	if biller == "" {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "biller is required", nil)
	}
	return p.TransferFunds(ctx, from, model.BillPaymentSink, amount, biller)
}

// transfer runs with p.mu held.
func (p *Paychain) transfer(ctx context.Context, from, to string, amount int64, category string) (*model.Receipt, error) {
	source, err := p.datasource.LoadAccount(ctx, from)
	if err != nil {
		return nil, err
	}
	if !model.IsSink(to) {
		if _, err := p.datasource.LoadAccount(ctx, to); err != nil {
			return nil, err
		}
	}

	now := p.now().UTC().Truncate(time.Microsecond)
	day := database.DayKey(now, p.location)
	spent, err := p.datasource.GetDailyDebit(ctx, from, day)
	if err != nil {
		return nil, err
	}

	txn := model.Transaction{
		TransactionID: model.GenerateUUIDWithSuffix("txn"),
		Timestamp:     now,
		FromAccount:   from,
		ToAccount:     to,
		Amount:        amount,
		Status:        model.StatusCompleted,
		Category:      category,
		Suspicious:    p.fraud.IsSuspicious(amount, p.dailyLimit, source.Balance),
	}

	if amount > p.dailyLimit-spent {
		return nil, p.reject(ctx, txn, apierror.NewAPIError(apierror.ErrDailyLimitExceeded,
			fmt.Sprintf("transfer of %d would exceed the daily limit of %d for account '%s' (%d already used)", amount, p.dailyLimit, from, spent), nil))
	}
	if source.Balance < amount {
		return nil, p.reject(ctx, txn, apierror.NewAPIError(apierror.ErrInsufficientFunds,
			fmt.Sprintf("account '%s' has insufficient funds", from), nil))
	}

	var appended *chain.Block
	entry, err := p.datasource.ApplyTransfer(ctx, database.TransferRequest{
		Transaction: txn,
		Day:         day,
		DailyLimit:  p.dailyLimit,
	}, func(ctx context.Context) (int64, string, error) {
		block, err := p.appendBlock(ctx, []model.Transaction{txn})
		if err != nil {
			return 0, "", err
		}
		appended = &block
		return block.Index, block.Hash, nil
	})
	if err != nil {
		if appended != nil {
			p.revertBlock(ctx, *appended)
		}
		return nil, err
	}

	p.datasource.InvalidateAccount(ctx, from, to)
	chainLength.Set(float64(p.chain.Len()))
	p.postTransferActions(entry)

	return &model.Receipt{
		Transaction: entry.Transaction,
		BlockIndex:  *entry.BlockIndex,
		BlockHash:   *entry.BlockHash,
	}, nil
}

// appendBlock mines payload onto the chain. A mining timeout is retried one
// difficulty level lower at a time, down to the configured minimum.
func (p *Paychain) appendBlock(ctx context.Context, payload []model.Transaction) (chain.Block, error) {
	ctx, span := tracer.Start(ctx, "AppendBlock")
	defer span.End()

	for difficulty := p.difficulty; ; difficulty-- {
		start := time.Now()
		block, err := p.chain.Append(ctx, payload, difficulty)
		if err == nil {
			miningDuration.Observe(time.Since(start).Seconds())
			span.SetAttributes(attribute.Int64("block.index", block.Index), attribute.Int("block.difficulty", int(difficulty)))
			return block, nil
		}
		if !apierror.IsCode(err, apierror.ErrMiningTimeout) || difficulty <= p.minDifficulty || ctx.Err() != nil {
			return chain.Block{}, logAndRecordError(span, "failed to append block", err)
		}
		logrus.WithField("difficulty", difficulty).Warn("mining timed out, retrying at lower difficulty")
	}
}

// revertBlock undoes a chain append whose SQL transaction did not commit.
func (p *Paychain) revertBlock(ctx context.Context, block chain.Block) {
	if err := p.chain.RevertHead(context.WithoutCancel(ctx), block.Hash); err != nil {
		notification.NotifyError(fmt.Errorf("failed to revert block %d after aborted transfer: %w", block.Index, err))
		return
	}
	logrus.WithField("block_index", block.Index).Warn("reverted block of aborted transfer")
}

// reject records a refused transfer as a failed ledger row when configured to. The
// returned error is always reason.
func (p *Paychain) reject(ctx context.Context, txn model.Transaction, reason error) error {
	if !p.recordRejections {
		return reason
	}

	txn.Status = model.StatusFailed
	if _, err := p.datasource.RecordTransaction(ctx, model.LedgerEntry{Transaction: txn}); err != nil {
		logrus.WithError(err).Error("failed to record rejected transfer")
		return reason
	}
	p.sendWebhookAsync(NewWebhook{Event: EventTransferRejected, Payload: map[string]interface{}{
		"transaction": txn,
		"reason":      reason.Error(),
	}})
	return reason
}

func (p *Paychain) postTransferActions(entry model.LedgerEntry) {
	p.sendWebhookAsync(NewWebhook{Event: EventTransferCompleted, Payload: entry})
	if entry.Suspicious {
		suspiciousTransfers.Inc()
		p.sendWebhookAsync(NewWebhook{Event: EventTransferSuspicious, Payload: entry})
	}
}
