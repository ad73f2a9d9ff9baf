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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	model2 "github.com/paychain-labs/paychain/api/model"
	"github.com/paychain-labs/paychain/model"
)

// TransferFunds moves money between two accounts.
//
// Responses:
// - 201 Created: the receipt, including the block the transfer was sealed in.
// - 400 Bad Request: invalid body.
// - 404 Not Found: an account does not exist.
// - 422 Unprocessable Entity: insufficient funds or daily limit exceeded.
// - 503 Service Unavailable: the block could not be mined in time.
func (a Api) TransferFunds(c *gin.Context) {
	var req model2.Transfer
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateTransfer(a.precision); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := model2.MinorAmount(req.Amount, a.precision)
	if err != nil {
		badRequest(c, err)
		return
	}

	receipt, err := a.paychain.TransferFunds(c.Request.Context(), req.From, req.To, amount, req.Category)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model2.FromReceipt(*receipt, a.precision))
}

// PayBill pays a biller from an account.
func (a Api) PayBill(c *gin.Context) {
	var req model2.BillPayment
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateBillPayment(a.precision); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := model2.MinorAmount(req.Amount, a.precision)
	if err != nil {
		badRequest(c, err)
		return
	}

	receipt, err := a.paychain.PayBill(c.Request.Context(), req.From, req.Biller, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model2.FromReceipt(*receipt, a.precision))
}

func (a Api) GetTransaction(c *gin.Context) {
	txn, err := a.paychain.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (a Api) GetSuspiciousTransactions(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	txns, err := a.paychain.GetSuspiciousTransactions(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if txns == nil {
		txns = []model.LedgerEntry{}
	}
	c.JSON(http.StatusOK, txns)
}
