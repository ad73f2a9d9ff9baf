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
	"strings"
	"time"

	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/internal/cache"
	"github.com/paychain-labs/paychain/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const accountCacheTTL = 5 * time.Minute

func accountCacheKey(id string) string {
	return "account:" + id
}

func (d Datasource) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	ctx, span := otel.Tracer("Account").Start(ctx, "Saving account to db")
	defer span.End()

	if account.AccountID == "" {
		account.AccountID = model.GenerateUUIDWithSuffix("acc")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	_, err := d.Conn.ExecContext(ctx,
		`INSERT INTO accounts (account_id, owner, balance, created_at) VALUES ($1, $2, $3, $4)`,
		account.AccountID, account.Owner, account.Balance, account.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		if isUniqueViolation(err) {
			return model.Account{}, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("account '%s' already exists", account.AccountID), err)
		}
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create account", err)
	}
	return account, nil
}

func (d Datasource) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	ctx, span := otel.Tracer("Account").Start(ctx, "Fetching account from db")
	defer span.End()

	if d.Cache != nil {
		var cached model.Account
		if err := d.Cache.Get(ctx, accountCacheKey(id), &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			logrus.WithError(err).Warn("account cache read failed")
		}
	}

	account, err := d.LoadAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, accountCacheKey(id), account, accountCacheTTL); err != nil {
			logrus.WithError(err).Warn("account cache write failed")
		}
	}
	return account, nil
}

// LoadAccount reads the account straight from the database, bypassing the cache.
// Balance checks must use it.
func (d Datasource) LoadAccount(ctx context.Context, id string) (*model.Account, error) {
	row := d.Conn.QueryRowContext(ctx,
		`SELECT account_id, owner, balance, created_at FROM accounts WHERE account_id = $1`, id)

	account := &model.Account{}
	err := row.Scan(&account.AccountID, &account.Owner, &account.Balance, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrAccountNotFound, fmt.Sprintf("account '%s' not found", id), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve account", err)
	}
	account.CreatedAt = account.CreatedAt.UTC()
	return account, nil
}

func (d Datasource) GetAllAccounts(ctx context.Context, limit, offset int) ([]model.Account, error) {
	limit, offset = page(limit, offset)
	rows, err := d.Conn.QueryContext(ctx,
		`SELECT account_id, owner, balance, created_at FROM accounts ORDER BY created_at, account_id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve accounts", err)
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.AccountID, &a.Owner, &a.Balance, &a.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan account", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve accounts", err)
	}
	return accounts, nil
}

// TotalBalance sums every account balance.
func (d Datasource) TotalBalance(ctx context.Context) (int64, error) {
	var total int64
	err := d.Conn.QueryRowContext(ctx, `SELECT COALESCE(SUM(balance), 0) FROM accounts`).Scan(&total)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum balances", err)
	}
	return total, nil
}

// InvalidateAccount drops cached copies of the given accounts.
func (d Datasource) InvalidateAccount(ctx context.Context, ids ...string) {
	if d.Cache == nil {
		return
	}
	for _, id := range ids {
		if err := d.Cache.Delete(ctx, accountCacheKey(id)); err != nil {
			logrus.WithError(err).WithField("account_id", id).Warn("account cache invalidation failed")
		}
	}
}

func page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
