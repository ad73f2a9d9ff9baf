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
	"github.com/paychain-labs/paychain"
	"github.com/paychain-labs/paychain/api/middleware"
	"github.com/paychain-labs/paychain/config"
	backups "github.com/paychain-labs/paychain/internal/chain-backups"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	paychain  *paychain.Paychain
	router    *gin.Engine
	backups   *backups.BackupManager
	precision int64
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/accounts", middleware.RequireMasterKey(), a.CreateAccount)
	router.GET("/accounts", a.GetAllAccounts)
	router.GET("/accounts/:id", a.GetAccount)
	router.GET("/accounts/:id/transactions", a.GetAccountTransactions)
	router.GET("/accounts/:id/daily-debits", a.GetDailyDebits)

	router.POST("/transfers", a.TransferFunds)
	router.POST("/bill-payments", a.PayBill)

	router.GET("/transactions/suspicious", a.GetSuspiciousTransactions)
	router.GET("/transactions/:id", a.GetTransaction)

	admin := router.Group("/admin", middleware.RequireMasterKey())
	admin.GET("/chain", a.GetChain)
	admin.GET("/chain/validate", a.ValidateChain)
	admin.POST("/chain/restore", a.RestoreChain)
	admin.POST("/chain/recover", a.RecoverChain)
	admin.GET("/audit-logs", a.GetAuditLogs)
	admin.GET("/backup", a.BackupChain)
	admin.GET("/backup-s3", a.BackupChainS3)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func serviceName(conf *config.Configuration) string {
	if conf.ProjectName == "" {
		return "paychain"
	}
	return conf.ProjectName
}

func NewAPI(p *paychain.Paychain) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(serviceName(conf)))
	r.Use(middleware.RateLimitMiddleware(conf))
	r.Use(middleware.Authenticate())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	precision := conf.Transfer.Precision
	if precision <= 0 {
		precision = config.DEFAULT_PRECISION
	}
	return &Api{
		paychain:  p,
		router:    r,
		backups:   backups.NewBackupManager(conf),
		precision: precision,
	}
}
