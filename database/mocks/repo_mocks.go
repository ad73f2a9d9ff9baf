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
package mocks

import (
	"context"

	"github.com/paychain-labs/paychain/database"
	"github.com/paychain-labs/paychain/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

var _ database.IDataSource = (*MockDataSource)(nil)

// Account methods

func (m *MockDataSource) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *MockDataSource) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	acc, _ := args.Get(0).(*model.Account)
	return acc, args.Error(1)
}

func (m *MockDataSource) LoadAccount(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	acc, _ := args.Get(0).(*model.Account)
	return acc, args.Error(1)
}

func (m *MockDataSource) GetAllAccounts(ctx context.Context, limit, offset int) ([]model.Account, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *MockDataSource) TotalBalance(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) InvalidateAccount(ctx context.Context, ids ...string) {
	m.Called(ctx, ids)
}

// Transaction methods

func (m *MockDataSource) RecordTransaction(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetTransaction(ctx context.Context, id string) (*model.LedgerEntry, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.LedgerEntry)
	return e, args.Error(1)
}

func (m *MockDataSource) GetAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, accountID, limit, offset)
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetSuspiciousTransactions(ctx context.Context, limit, offset int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetAllTransactions(ctx context.Context, limit, offset int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) ApplyTransfer(ctx context.Context, req database.TransferRequest, beforeCommit database.BeforeCommitFunc) (model.LedgerEntry, error) {
	args := m.Called(ctx, req, beforeCommit)
	if rf, ok := args.Get(0).(func(context.Context, database.TransferRequest, database.BeforeCommitFunc) model.LedgerEntry); ok {
		return rf(ctx, req, beforeCommit), args.Error(1)
	}
	return args.Get(0).(model.LedgerEntry), args.Error(1)
}

// Daily debit methods

func (m *MockDataSource) GetDailyDebit(ctx context.Context, accountID, day string) (int64, error) {
	args := m.Called(ctx, accountID, day)
	return args.Get(0).(int64), args.Error(1)
}

// Audit methods

func (m *MockDataSource) RecordAuditLog(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(model.AuditEntry), args.Error(1)
}

func (m *MockDataSource) GetAuditLogs(ctx context.Context, limit, offset int) ([]model.AuditEntry, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.AuditEntry), args.Error(1)
}
