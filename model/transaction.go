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

import "time"

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	// BillPaymentSink is the destination used for bill payments. Value sent to a sink
	// leaves the set of accounts, so nothing is credited.
	BillPaymentSink = "BILL_PAYMENT"

	DefaultCategory = "transfer"
)

var sinks = map[string]struct{}{
	BillPaymentSink: {},
}

// IsSink reports whether id names a non-account destination.
func IsSink(id string) bool {
	_, ok := sinks[id]
	return ok
}

// Transaction is an immutable record of one money movement. Its JSON field order is
// part of the block hash encoding and must not change.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
	FromAccount   string    `json:"from_account"`
	ToAccount     string    `json:"to_account"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Category      string    `json:"category"`
	Suspicious    bool      `json:"suspicious"`
}

// Equal compares two records field by field, timestamps by instant.
func (t Transaction) Equal(o Transaction) bool {
	return t.TransactionID == o.TransactionID &&
		t.Timestamp.Equal(o.Timestamp) &&
		t.FromAccount == o.FromAccount &&
		t.ToAccount == o.ToAccount &&
		t.Amount == o.Amount &&
		t.Status == o.Status &&
		t.Category == o.Category &&
		t.Suspicious == o.Suspicious
}

// LedgerEntry is a transaction as stored in ledger history. Failed entries carry no
// block reference.
type LedgerEntry struct {
	Transaction
	BlockIndex *int64  `json:"block_index,omitempty"`
	BlockHash  *string `json:"block_hash,omitempty"`
}

// Receipt is returned for every committed transfer.
type Receipt struct {
	Transaction Transaction `json:"transaction"`
	BlockIndex  int64       `json:"block_index"`
	BlockHash   string      `json:"block_hash"`
}
