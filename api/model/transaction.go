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

type Transfer struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
}

func (t *Transfer) ValidateTransfer(precision int64) error {
	return validation.ValidateStruct(t,
		validation.Field(&t.From, validation.Required, validation.By(notSink)),
		validation.Field(&t.To, validation.Required, validation.NotIn(t.From).Error("must differ from the source account")),
		validation.Field(&t.Amount, validation.Required, validation.By(amountRule(precision))),
		validation.Field(&t.Category, validation.Length(0, 64)),
	)
}

type BillPayment struct {
	From   string `json:"from"`
	Biller string `json:"biller"`
	Amount string `json:"amount"`
}

func (b *BillPayment) ValidateBillPayment(precision int64) error {
	return validation.ValidateStruct(b,
		validation.Field(&b.From, validation.Required, validation.By(notSink)),
		validation.Field(&b.Biller, validation.Required, validation.Length(1, 64)),
		validation.Field(&b.Amount, validation.Required, validation.By(amountRule(precision))),
	)
}

// MinorAmount converts a validated decimal amount to minor units.
func MinorAmount(amount string, precision int64) (int64, error) {
	return model.ParseAmount(amount, precision)
}

// Receipt is a completed transfer as returned by the API.
type Receipt struct {
	model.Receipt
	DisplayAmount string `json:"display_amount"`
}

func FromReceipt(r model.Receipt, precision int64) Receipt {
	return Receipt{Receipt: r, DisplayAmount: model.FormatAmount(r.Transaction.Amount, precision)}
}
