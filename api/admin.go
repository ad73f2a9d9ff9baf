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
	"github.com/paychain-labs/paychain/internal/apierror"
	"github.com/paychain-labs/paychain/model"
)

func (a Api) GetChain(c *gin.Context) {
	blocks, err := a.paychain.ChainBlocks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, blocks)
}

func (a Api) ValidateChain(c *gin.Context) {
	report, err := a.paychain.ValidateChain(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// RestoreChain replaces the chain with the backup snapshot unconditionally. The
// caller named in X-Paychain-Actor is recorded in the audit log.
func (a Api) RestoreChain(c *gin.Context) {
	outcome, err := a.paychain.RestoreChain(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// RecoverChain restores the chain only when validation finds tampering.
func (a Api) RecoverChain(c *gin.Context) {
	outcome, err := a.paychain.CheckAndRecover(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (a Api) GetAuditLogs(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	logs, err := a.paychain.GetAuditLogs(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if logs == nil {
		logs = []model.AuditEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (a Api) BackupChain(c *gin.Context) {
	snapshot, err := a.paychain.ChainSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	path, err := a.backups.BackupToDisk(c.Request.Context(), snapshot)
	if err != nil {
		respondError(c, apierror.NewAPIError(apierror.ErrPersistence, "backup failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "backup successful", "path": path})
}

func (a Api) BackupChainS3(c *gin.Context) {
	snapshot, err := a.paychain.ChainSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	key, err := a.backups.BackupToS3(c.Request.Context(), snapshot)
	if err != nil {
		respondError(c, apierror.NewAPIError(apierror.ErrPersistence, "backup failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "backup successful", "key": key})
}
