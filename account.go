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
	"strings"
	"time"

	"github.com/paychain-labs/paychain/chain"
	"github.com/paychain-labs/paychain/database"
	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/model"
)

// CreateAccount opens an account with an initial balance in minor units.
func (p *Paychain) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	account.Owner = strings.TrimSpace(account.Owner)
	if account.Owner == "" {
		return model.Account{}, apierror.NewAPIError(apierror.ErrValidation, "owner is required", nil)
	}
	if account.Balance < 0 {
		return model.Account{}, apierror.NewAPIError(apierror.ErrValidation, "initial balance cannot be negative", nil)
	}
	if model.IsSink(account.AccountID) {
		return model.Account{}, apierror.NewAPIError(apierror.ErrValidation, "account id is reserved", nil)
	}
	if account.AccountID == "" {
		account.AccountID = model.GenerateUUIDWithSuffix("acc")
	}
	account.CreatedAt = p.now().UTC().Truncate(time.Microsecond)
	return p.datasource.CreateAccount(ctx, account)
}

func (p *Paychain) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return p.datasource.GetAccountByID(ctx, id)
}

func (p *Paychain) GetAllAccounts(ctx context.Context, limit, offset int) ([]model.Account, error) {
	return p.datasource.GetAllAccounts(ctx, limit, offset)
}

func (p *Paychain) GetTransaction(ctx context.Context, id string) (*model.LedgerEntry, error) {
	return p.datasource.GetTransaction(ctx, id)
}

// GetAccountHistory returns the account statement, most recent first.
func (p *Paychain) GetAccountHistory(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	if _, err := p.datasource.GetAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return p.datasource.GetAccountTransactions(ctx, accountID, limit, offset)
}

func (p *Paychain) GetSuspiciousTransactions(ctx context.Context, limit, offset int) ([]model.LedgerEntry, error) {
	return p.datasource.GetSuspiciousTransactions(ctx, limit, offset)
}

// DailyDebits is an account's usage of its daily limit.
type DailyDebits struct {
	AccountID string `json:"account_id"`
	Day       string `json:"day"`
	Debited   int64  `json:"debited"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

// GetDailyDebits reports today's accumulated debits for an account.
func (p *Paychain) GetDailyDebits(ctx context.Context, accountID string) (*DailyDebits, error) {
	if _, err := p.datasource.GetAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	day := database.DayKey(p.now(), p.location)
	spent, err := p.datasource.GetDailyDebit(ctx, accountID, day)
	if err != nil {
		return nil, err
	}
	remaining := p.dailyLimit - spent
	if remaining < 0 {
		remaining = 0
	}
	return &DailyDebits{AccountID: accountID, Day: day, Debited: spent, Limit: p.dailyLimit, Remaining: remaining}, nil
}

// ChainBlocks returns a copy of the chain as last written by any process sharing
// the chain stores.
func (p *Paychain) ChainBlocks(ctx context.Context) ([]chain.Block, error) {
	if err := p.chain.Refresh(ctx); err != nil {
		return nil, err
	}
	return p.chain.Blocks(), nil
}

// ChainSnapshot returns the current known-good snapshot for backups.
func (p *Paychain) ChainSnapshot(ctx context.Context) (*chain.Snapshot, error) {
	if err := p.chain.Refresh(ctx); err != nil {
		return nil, err
	}
	return p.chain.Snapshot(), nil
}
