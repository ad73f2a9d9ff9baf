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

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/paychain-labs/paychain/api"
	"github.com/paychain-labs/paychain/config"
	trace "github.com/paychain-labs/paychain/internal/traces"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serveTLS starts an HTTPS server whose certificates are managed by CertMagic. With no
// domain configured it serves localhost.
func serveTLS(ctx context.Context, r *gin.Engine, conf config.ServerConfig, storageDir string) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: storageDir}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}
	return serve(ctx, server, func() error { return server.ListenAndServeTLS("", "") })
}

// serve runs listen until ctx is cancelled, then shuts the server down gracefully.
func serve(ctx context.Context, server *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- listen() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// initializeTracing installs the OTel SDK when telemetry is enabled. The returned
// shutdown is always safe to call.
func initializeTracing(ctx context.Context, cfg *config.Configuration, component string) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	service := cfg.ProjectName
	if service == "" {
		service = "paychain"
	}
	shutdown, err := trace.SetupOTelSDK(ctx, service+"-"+component, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func flushTraces(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("failed to flush traces")
	}
}

func startServer(ctx context.Context, router *gin.Engine, cfg *config.Configuration) error {
	if cfg.Server.SSL {
		return serveTLS(ctx, router, cfg.Server, filepath.Join(filepath.Dir(cfg.Chain.File), "certmagic"))
	}
	logrus.Infof("Starting server on http://localhost:%s", cfg.Server.Port)
	server := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	return serve(ctx, server, server.ListenAndServe)
}

func serverCommands(app *paychainInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the paychain HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := initializeTracing(ctx, app.cnf, "server")
			if err != nil {
				return err
			}
			defer flushTraces(shutdown)

			a := api.NewAPI(app.paychain)
			if a == nil {
				return errors.New("api: configuration not loaded")
			}
			return startServer(ctx, a.Router(), app.cnf)
		},
	}

	return cmd
}
