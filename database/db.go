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
	"database/sql"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paychain-labs/paychain/config"
	"github.com/paychain-labs/paychain/internal/cache"
	migrate "github.com/rubenv/sql-migrate"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn   *sql.DB
	Cache  cache.Cache
	Driver string
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection returns the process-wide datasource, connecting and migrating on
// first use.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Driver, configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		if _, errConn = Migrate(con, configuration.DataSource.Driver, migrate.Up); errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Driver: configuration.DataSource.Driver}
	})
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("database connection was not initialised")
	}
	return instance, nil
}

// ConnectDB opens and pings the database. SQLite is limited to a single connection
// so that writers queue instead of failing with SQLITE_BUSY.
func ConnectDB(driver, dns string) (*sql.DB, error) {
	if driver == "" {
		driver = config.DriverSQLite
	}
	if driver == config.DriverSQLite && !strings.HasPrefix(dns, "file:") && dns != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dns), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(driver, dns)
	if err != nil {
		return nil, err
	}
	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	return db, nil
}

// Migrate applies or rolls back the embedded migrations and returns how many ran.
func Migrate(db *sql.DB, driver string, direction migrate.MigrationDirection) (int, error) {
	migrations := migrate.EmbedFileSystemMigrationSource{
		FileSystem: SQLFiles,
		Root:       "sql",
	}
	if driver == "" {
		driver = config.DriverSQLite
	}
	return migrate.Exec(db, driver, migrations, direction)
}

// NewWithConn wraps an existing connection. Used by tests and embedders.
func NewWithConn(conn *sql.DB, driver string) *Datasource {
	return &Datasource{Conn: conn, Driver: driver}
}

func (d *Datasource) WithCache(c cache.Cache) *Datasource {
	d.Cache = c
	return d
}

func (d *Datasource) Close() error {
	return d.Conn.Close()
}
