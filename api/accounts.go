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

// CreateAccount opens an account with an optional opening balance.
//
// Responses:
// - 201 Created: the new account.
// - 400 Bad Request: invalid body.
// - 409 Conflict: the account id is taken.
func (a Api) CreateAccount(c *gin.Context) {
	var newAccount model2.CreateAccount
	if err := c.ShouldBindJSON(&newAccount); err != nil {
		badRequest(c, err)
		return
	}
	if err := newAccount.ValidateCreateAccount(a.precision); err != nil {
		badRequest(c, err)
		return
	}

	account, err := newAccount.ToAccount(a.precision)
	if err != nil {
		badRequest(c, err)
		return
	}
	resp, err := a.paychain.CreateAccount(c.Request.Context(), account)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model2.FromAccount(resp, a.precision))
}

func (a Api) GetAccount(c *gin.Context) {
	account, err := a.paychain.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, model2.FromAccount(*account, a.precision))
}

func (a Api) GetAllAccounts(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	accounts, err := a.paychain.GetAllAccounts(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]model2.Account, len(accounts))
	for i, acc := range accounts {
		resp[i] = model2.FromAccount(acc, a.precision)
	}
	c.JSON(http.StatusOK, resp)
}

// GetAccountTransactions returns the statement of an account, newest first.
func (a Api) GetAccountTransactions(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	history, err := a.paychain.GetAccountHistory(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []model.LedgerEntry{}
	}
	c.JSON(http.StatusOK, history)
}

func (a Api) GetDailyDebits(c *gin.Context) {
	debits, err := a.paychain.GetDailyDebits(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, debits)
}
