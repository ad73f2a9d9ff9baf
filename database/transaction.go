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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const ledgerColumns = `transaction_id, created_at, from_account, to_account, amount, status, category, suspicious, block_index, block_hash`

const insertLedgerEntry = `INSERT INTO transactions (` + ledgerColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// The limit guard appears in both the insert and the conflict branch so a single
// statement either grows the bucket within the limit or changes nothing.
const upsertDailyDebit = `INSERT INTO daily_debits (account_id, day, total)
	SELECT $1, $2, CAST($3 AS BIGINT) WHERE CAST($3 AS BIGINT) <= $4
	ON CONFLICT (account_id, day) DO UPDATE SET total = daily_debits.total + excluded.total
	WHERE daily_debits.total + excluded.total <= $4`

const debitAccount = `UPDATE accounts SET balance = balance - $1 WHERE account_id = $2 AND balance >= $1`

const creditAccount = `UPDATE accounts SET balance = balance + $1 WHERE account_id = $2`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLedgerEntry(row scanner) (model.LedgerEntry, error) {
	var (
		e          model.LedgerEntry
		blockIndex sql.NullInt64
		blockHash  sql.NullString
	)
	err := row.Scan(&e.TransactionID, &e.Timestamp, &e.FromAccount, &e.ToAccount, &e.Amount,
		&e.Status, &e.Category, &e.Suspicious, &blockIndex, &blockHash)
	if err != nil {
		return e, err
	}
	e.Timestamp = e.Timestamp.UTC()
	if blockIndex.Valid {
		idx := blockIndex.Int64
		e.BlockIndex = &idx
	}
	if blockHash.Valid {
		h := blockHash.String
		e.BlockHash = &h
	}
	return e, nil
}

func ledgerArgs(e model.LedgerEntry) []interface{} {
	var blockIndex sql.NullInt64
	var blockHash sql.NullString
	if e.BlockIndex != nil {
		blockIndex = sql.NullInt64{Int64: *e.BlockIndex, Valid: true}
	}
	if e.BlockHash != nil {
		blockHash = sql.NullString{String: *e.BlockHash, Valid: true}
	}
	return []interface{}{
		e.TransactionID, e.Timestamp.UTC(), e.FromAccount, e.ToAccount, e.Amount,
		e.Status, e.Category, e.Suspicious, blockIndex, blockHash,
	}
}

// RecordTransaction appends a ledger row outside of a transfer. Used for failed
// (rejected) transfers, which never move money.
func (d Datasource) RecordTransaction(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Saving transaction to db")
	defer span.End()

	if _, err := d.Conn.ExecContext(ctx, insertLedgerEntry, ledgerArgs(entry)...); err != nil {
		span.RecordError(err)
		return entry, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}
	return entry, nil
}

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.LedgerEntry, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM transactions WHERE transaction_id = $1`, id)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return &e, nil
}

// GetAccountTransactions returns the statement of an account, most recent first.
func (d Datasource) GetAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	limit, offset = page(limit, offset)
	return d.queryLedger(ctx,
		`SELECT `+ledgerColumns+` FROM transactions WHERE from_account = $1 OR to_account = $1
		ORDER BY created_at DESC, transaction_id DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
}

func (d Datasource) GetSuspiciousTransactions(ctx context.Context, limit, offset int) ([]model.LedgerEntry, error) {
	limit, offset = page(limit, offset)
	return d.queryLedger(ctx,
		`SELECT `+ledgerColumns+` FROM transactions WHERE suspicious = $1
		ORDER BY created_at DESC, transaction_id DESC LIMIT $2 OFFSET $3`,
		true, limit, offset)
}

// GetAllTransactions returns ledger history in commit order.
func (d Datasource) GetAllTransactions(ctx context.Context, limit, offset int) ([]model.LedgerEntry, error) {
	limit, offset = page(limit, offset)
	return d.queryLedger(ctx,
		`SELECT `+ledgerColumns+` FROM transactions ORDER BY created_at, transaction_id LIMIT $1 OFFSET $2`,
		limit, offset)
}

func (d Datasource) queryLedger(ctx context.Context, query string, args ...interface{}) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer rows.Close()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	return entries, nil
}

// ApplyTransfer moves req.Transaction.Amount between accounts in one SQL transaction:
// the daily accumulator grows (bounded by req.DailyLimit), the source is debited
// (never below zero), the destination is credited unless it is a sink, beforeCommit
// runs, and the ledger row is written with the block reference it returned. Any
// failure rolls the whole transaction back.
func (d Datasource) ApplyTransfer(ctx context.Context, req TransferRequest, beforeCommit BeforeCommitFunc) (model.LedgerEntry, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Applying transfer")
	defer span.End()

	txn := req.Transaction
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return model.LedgerEntry{}, recordErr(span, apierror.NewAPIError(apierror.ErrPersistence, "Failed to begin transaction", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, upsertDailyDebit, txn.FromAccount, req.Day, txn.Amount, req.DailyLimit)
	if err != nil {
		return model.LedgerEntry{}, recordErr(span, apierror.NewAPIError(apierror.ErrPersistence, "Failed to update daily debits", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.LedgerEntry{}, apierror.NewAPIError(apierror.ErrDailyLimitExceeded,
			fmt.Sprintf("transfer of %d would exceed the daily limit of %d for account '%s'", txn.Amount, req.DailyLimit, txn.FromAccount), nil)
	}

	res, err = tx.ExecContext(ctx, debitAccount, txn.Amount, txn.FromAccount)
	if err != nil {
		return model.LedgerEntry{}, recordErr(span, apierror.NewAPIError(apierror.ErrPersistence, "Failed to debit account", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.LedgerEntry{}, apierror.NewAPIError(apierror.ErrInsufficientFunds,
			fmt.Sprintf("account '%s' has insufficient funds", txn.FromAccount), nil)
	}

	if !model.IsSink(txn.ToAccount) {
		res, err = tx.ExecContext(ctx, creditAccount, txn.Amount, txn.ToAccount)
		if err != nil {
			return model.LedgerEntry{}, recordErr(span, apierror.NewAPIError(apierror.ErrPersistence, "Failed to credit account", err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.LedgerEntry{}, apierror.NewAPIError(apierror.ErrAccountNotFound,
				fmt.Sprintf("account '%s' not found", txn.ToAccount), nil)
		}
	}

	entry := model.LedgerEntry{Transaction: txn}
	if beforeCommit != nil {
		idx, hash, err := beforeCommit(ctx)
		if err != nil {
			return model.LedgerEntry{}, recordErr(span, err)
		}
		entry.BlockIndex = &idx
		entry.BlockHash = &hash
	}

	if _, err := tx.ExecContext(ctx, insertLedgerEntry, ledgerArgs(entry)...); err != nil {
		return model.LedgerEntry{}, recordErr(span, apierror.NewAPIError(apierror.ErrPersistence, "Failed to record transaction", err))
	}

	if err := tx.Commit(); err != nil {
		return model.LedgerEntry{}, recordErr(span, apierror.NewAPIError(apierror.ErrPersistence, "Failed to commit transfer", err))
	}
	return entry, nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	return err
}
