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
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/model"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteDatasource(t *testing.T) *Datasource {
	t.Helper()
	conn, err := ConnectDB("sqlite3", filepath.Join(t.TempDir(), "paychain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	n, err := Migrate(conn, "sqlite3", migrate.Up)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return NewWithConn(conn, "sqlite3")
}

func seedAccount(t *testing.T, ds *Datasource, id string, balance int64) model.Account {
	t.Helper()
	acc, err := ds.CreateAccount(context.Background(), model.Account{AccountID: id, Owner: gofakeit.Name(), Balance: balance})
	require.NoError(t, err)
	return acc
}

func balanceOf(t *testing.T, ds *Datasource, id string) int64 {
	t.Helper()
	acc, err := ds.LoadAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func sqliteTransfer(id, from, to string, amount int64, at time.Time) TransferRequest {
	return TransferRequest{
		Transaction: model.Transaction{
			TransactionID: id,
			Timestamp:     at,
			FromAccount:   from,
			ToAccount:     to,
			Amount:        amount,
			Status:        model.StatusCompleted,
			Category:      model.DefaultCategory,
		},
		Day:        DayKey(at, time.UTC),
		DailyLimit: 500000,
	}
}

func TestSQLite_AccountLifecycle(t *testing.T) {
	ds := newSQLiteDatasource(t)
	ctx := context.Background()

	acc := seedAccount(t, ds, "acc_a", 100000)
	got, err := ds.GetAccountByID(ctx, "acc_a")
	require.NoError(t, err)
	assert.Equal(t, acc.Owner, got.Owner)
	assert.Equal(t, int64(100000), got.Balance)
	assert.True(t, acc.CreatedAt.Equal(got.CreatedAt))

	_, err = ds.CreateAccount(ctx, model.Account{AccountID: "acc_a", Owner: "dup"})
	assert.True(t, apierror.IsCode(err, apierror.ErrConflict))

	_, err = ds.CreateAccount(ctx, model.Account{AccountID: "acc_neg", Owner: "neg", Balance: -1})
	assert.Error(t, err)

	seedAccount(t, ds, "acc_b", 5000)
	all, err := ds.GetAllAccounts(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	total, err := ds.TotalBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(105000), total)
}

func TestSQLite_ApplyTransfer(t *testing.T) {
	ds := newSQLiteDatasource(t)
	ctx := context.Background()
	seedAccount(t, ds, "acc_a", 100000)
	seedAccount(t, ds, "acc_b", 0)

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	entry, err := ds.ApplyTransfer(ctx, sqliteTransfer("txn_1", "acc_a", "acc_b", 3000, at), hook(1, "00aa", nil))
	require.NoError(t, err)
	assert.Equal(t, int64(1), *entry.BlockIndex)

	assert.Equal(t, int64(97000), balanceOf(t, ds, "acc_a"))
	assert.Equal(t, int64(3000), balanceOf(t, ds, "acc_b"))

	debited, err := ds.GetDailyDebit(ctx, "acc_a", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), debited)

	stored, err := ds.GetTransaction(ctx, "txn_1")
	require.NoError(t, err)
	assert.True(t, stored.Timestamp.Equal(at))
	assert.Equal(t, "00aa", *stored.BlockHash)
}

func TestSQLite_DailyLimitGuard(t *testing.T) {
	ds := newSQLiteDatasource(t)
	ctx := context.Background()
	seedAccount(t, ds, "acc_a", 1000000)
	seedAccount(t, ds, "acc_b", 0)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := ds.ApplyTransfer(ctx, sqliteTransfer("txn_1", "acc_a", "acc_b", 300000, at), hook(1, "00", nil))
	require.NoError(t, err)

	// Exactly reaching the limit is allowed.
	_, err = ds.ApplyTransfer(ctx, sqliteTransfer("txn_2", "acc_a", "acc_b", 200000, at), hook(2, "00", nil))
	require.NoError(t, err)

	_, err = ds.ApplyTransfer(ctx, sqliteTransfer("txn_3", "acc_a", "acc_b", 1, at), hook(3, "00", nil))
	assert.True(t, apierror.IsCode(err, apierror.ErrDailyLimitExceeded))

	// A new day starts a new bucket.
	_, err = ds.ApplyTransfer(ctx, sqliteTransfer("txn_4", "acc_a", "acc_b", 1, at.Add(24*time.Hour)), hook(4, "00", nil))
	require.NoError(t, err)

	assert.Equal(t, int64(499999), balanceOf(t, ds, "acc_a"))
	debited, _ := ds.GetDailyDebit(ctx, "acc_a", "2024-05-01")
	assert.Equal(t, int64(500000), debited)
}

func TestSQLite_RollbackLeavesNoTrace(t *testing.T) {
	ds := newSQLiteDatasource(t)
	ctx := context.Background()
	seedAccount(t, ds, "acc_a", 1000)
	seedAccount(t, ds, "acc_b", 0)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := ds.ApplyTransfer(ctx, sqliteTransfer("txn_1", "acc_a", "acc_b", 5000, at), hook(1, "00", nil))
	assert.True(t, apierror.IsCode(err, apierror.ErrInsufficientFunds))

	_, err = ds.ApplyTransfer(ctx, sqliteTransfer("txn_2", "acc_a", "acc_b", 500, at),
		hook(0, "", apierror.NewAPIError(apierror.ErrMiningTimeout, "mining gave up", nil)))
	assert.True(t, apierror.IsCode(err, apierror.ErrMiningTimeout))

	assert.Equal(t, int64(1000), balanceOf(t, ds, "acc_a"))
	assert.Equal(t, int64(0), balanceOf(t, ds, "acc_b"))

	debited, err := ds.GetDailyDebit(ctx, "acc_a", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), debited)

	history, err := ds.GetAllTransactions(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLite_BillPaymentSink(t *testing.T) {
	ds := newSQLiteDatasource(t)
	ctx := context.Background()
	seedAccount(t, ds, "acc_a", 10000)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := ds.ApplyTransfer(ctx, sqliteTransfer("txn_1", "acc_a", model.BillPaymentSink, 2500, at), hook(1, "00", nil))
	require.NoError(t, err)

	assert.Equal(t, int64(7500), balanceOf(t, ds, "acc_a"))
	total, _ := ds.TotalBalance(ctx)
	assert.Equal(t, int64(7500), total)
}

func TestSQLite_History(t *testing.T) {
	ds := newSQLiteDatasource(t)
	ctx := context.Background()
	seedAccount(t, ds, "acc_a", 100000)
	seedAccount(t, ds, "acc_b", 100000)
	seedAccount(t, ds, "acc_c", 0)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := ds.ApplyTransfer(ctx, sqliteTransfer("txn_1", "acc_a", "acc_b", 100, base), hook(1, "00", nil))
	require.NoError(t, err)
	_, err = ds.ApplyTransfer(ctx, sqliteTransfer("txn_2", "acc_b", "acc_c", 200, base.Add(time.Second)), hook(2, "00", nil))
	require.NoError(t, err)

	failed := model.LedgerEntry{Transaction: model.Transaction{
		TransactionID: "txn_3", Timestamp: base.Add(2 * time.Second), FromAccount: "acc_a", ToAccount: "acc_c",
		Amount: 90000, Status: model.StatusFailed, Category: model.DefaultCategory, Suspicious: true,
	}}
	_, err = ds.RecordTransaction(ctx, failed)
	require.NoError(t, err)

	statement, err := ds.GetAccountTransactions(ctx, "acc_b", 0, 0)
	require.NoError(t, err)
	require.Len(t, statement, 2)
	assert.Equal(t, "txn_2", statement[0].TransactionID)
	assert.Equal(t, "txn_1", statement[1].TransactionID)

	suspicious, err := ds.GetSuspiciousTransactions(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, suspicious, 1)
	assert.Equal(t, "txn_3", suspicious[0].TransactionID)
	assert.Nil(t, suspicious[0].BlockIndex)

	all, err := ds.GetAllTransactions(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "txn_2", all[0].TransactionID)
}

func TestSQLite_AuditLogs(t *testing.T) {
	ds := newSQLiteDatasource(t)
	ctx := context.Background()

	first, err := ds.RecordAuditLog(ctx, model.AuditEntry{
		Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), Actor: "ops", Action: model.ActionChainRestore, Detail: "[2]",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.AuditID)

	_, err = ds.RecordAuditLog(ctx, model.AuditEntry{
		Timestamp: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), Actor: "scheduler", Action: model.ActionChainRestore, Detail: "[0]",
	})
	require.NoError(t, err)

	logs, err := ds.GetAuditLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "scheduler", logs[0].Actor)
	assert.Equal(t, "ops", logs[1].Actor)
}

func TestSQLite_MigrateDown(t *testing.T) {
	ds := newSQLiteDatasource(t)
	n, err := Migrate(ds.Conn, "sqlite3", migrate.Down)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ds.GetAllAccounts(context.Background(), 0, 0)
	assert.Error(t, err)
}
