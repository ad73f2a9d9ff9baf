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
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/paychain-labs/paychain"
	"github.com/paychain-labs/paychain/api/middleware"
	"github.com/paychain-labs/paychain/chain"
	"github.com/paychain-labs/paychain/config"
	"github.com/paychain-labs/paychain/database"
	migrate "github.com/rubenv/sql-migrate"
)

const testSecretKey = "test-secret"

type TestRequest struct {
	Payload  io.Reader
	Response interface{}
	Method   string
	Route    string
	Auth     string
	Header   map[string]string
	Router   *gin.Engine
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	if s.Auth != "" {
		req.Header.Set(middleware.KeyHeader, s.Auth)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response == nil {
		return resp, nil
	}
	err := json.NewDecoder(resp.Body).Decode(s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type testServer struct {
	router    *gin.Engine
	paychain  *paychain.Paychain
	chainFile string
}

func setupRouter(t *testing.T, secure bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	config.MockConfig(&config.Configuration{
		ProjectName: "paychain",
		BackupDir:   filepath.Join(dir, "backups"),
		Server:      config.ServerConfig{SecretKey: testSecretKey, Secure: secure},
		Transfer:    config.TransferConfig{DailyLimit: 50000, Precision: 100},
	})

	conn, err := database.ConnectDB(config.DriverSQLite, filepath.Join(dir, "paychain.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := database.Migrate(conn, config.DriverSQLite, migrate.Up); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	chainFile := filepath.Join(dir, "chain.json")
	store, err := chain.NewFileStore(chainFile)
	if err != nil {
		t.Fatalf("Failed to open chain store: %v", err)
	}
	backup, err := chain.NewFileStore(filepath.Join(dir, "chain.backup.json"))
	if err != nil {
		t.Fatalf("Failed to open backup store: %v", err)
	}
	cm := chain.NewManager(store, chain.WithBackupStore(backup))
	if err := cm.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init chain: %v", err)
	}

	p, err := paychain.NewPaychain(database.NewWithConn(conn, config.DriverSQLite), cm,
		paychain.WithDifficulty(1, 1), paychain.WithDailyLimit(50000))
	if err != nil {
		t.Fatalf("Failed to create paychain: %v", err)
	}

	api := NewAPI(p)
	if api == nil {
		t.Fatal("NewAPI returned nil")
	}
	return &testServer{router: api.Router(), paychain: p, chainFile: chainFile}
}
