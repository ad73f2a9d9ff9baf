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

package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/paychain-labs/paychain/model"
)

type CreateAccount struct {
	AccountID string `json:"account_id"`
	Owner     string `json:"owner"`
	Balance   string `json:"balance"`
}

func (a *CreateAccount) ValidateCreateAccount(precision int64) error {
	return validation.ValidateStruct(a,
		validation.Field(&a.AccountID, validation.Length(0, 64), validation.By(notSink)),
		validation.Field(&a.Owner, validation.Required, validation.Length(1, 255)),
		validation.Field(&a.Balance, validation.By(openingBalanceRule(precision))),
	)
}

func (a *CreateAccount) ToAccount(precision int64) (model.Account, error) {
	balance, err := parseOpeningBalance(a.Balance, precision)
	if err != nil {
		return model.Account{}, err
	}
	return model.Account{AccountID: a.AccountID, Owner: a.Owner, Balance: balance}, nil
}

// Account is an account as returned by the API, with the balance rendered in major units.
type Account struct {
	model.Account
	DisplayBalance string `json:"display_balance"`
}

func FromAccount(acc model.Account, precision int64) Account {
	return Account{Account: acc, DisplayBalance: model.FormatAmount(acc.Balance, precision)}
}
