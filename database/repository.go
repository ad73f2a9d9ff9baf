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
	"time"

	"github.com/paychain-labs/paychain/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	account
	transaction
	dailyDebit
	audit
	transfer
}

type account interface {
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	LoadAccount(ctx context.Context, id string) (*model.Account, error)
	GetAllAccounts(ctx context.Context, limit, offset int) ([]model.Account, error)
	TotalBalance(ctx context.Context) (int64, error)
	InvalidateAccount(ctx context.Context, ids ...string)
}

type transaction interface {
	RecordTransaction(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error)
	GetTransaction(ctx context.Context, id string) (*model.LedgerEntry, error)
	GetAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error)
	GetSuspiciousTransactions(ctx context.Context, limit, offset int) ([]model.LedgerEntry, error)
	GetAllTransactions(ctx context.Context, limit, offset int) ([]model.LedgerEntry, error)
}

type dailyDebit interface {
	GetDailyDebit(ctx context.Context, accountID, day string) (int64, error)
}

type audit interface {
	RecordAuditLog(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error)
	GetAuditLogs(ctx context.Context, limit, offset int) ([]model.AuditEntry, error)
}

type transfer interface {
	ApplyTransfer(ctx context.Context, req TransferRequest, beforeCommit BeforeCommitFunc) (model.LedgerEntry, error)
}

// TransferRequest is one completed debit/credit pair together with the accumulator
// bucket it counts against.
type TransferRequest struct {
	Transaction model.Transaction
	Day         string
	DailyLimit  int64
}

// BeforeCommitFunc runs inside the SQL transaction after the balances have moved and
// before the ledger row is written. It returns the block that recorded the transfer.
type BeforeCommitFunc func(ctx context.Context) (blockIndex int64, blockHash string, err error)

// DayKey formats t as the accumulator bucket for loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
