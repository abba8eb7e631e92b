// Copyright 2023 Kami
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dbpool

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Connection wraps one *sql.DB handle with the alive-timestamp bookkeeping
// the idle-reaper needs.
type Connection struct {
	db         *sql.DB
	aliveSince time.Time
}

// dial opens one connection to the database described by cfg.
func dial(cfg Config) (*Connection, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("dbpool: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbpool: ping: %w", err)
	}
	c := &Connection{db: db}
	c.RefreshAliveTime()
	return c, nil
}

// DB returns the underlying *sql.DB for queries.
func (c *Connection) DB() *sql.DB { return c.db }

// RefreshAliveTime resets the idle clock; called whenever the connection
// re-enters the idle queue.
func (c *Connection) RefreshAliveTime() { c.aliveSince = time.Now() }

// IdleTime returns how long the connection has sat idle.
func (c *Connection) IdleTime() time.Duration { return time.Since(c.aliveSince) }

func (c *Connection) close() error { return c.db.Close() }
