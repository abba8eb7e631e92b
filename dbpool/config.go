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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds a ConnectionPool's backing-database coordinates and sizing
// policy. In the config file max_idle_time is seconds and
// connection_timeout is microseconds — the two units deliberately differ,
// matching the source config format; ParseConfig converts both to
// time.Duration.
type Config struct {
	IP       string
	Port     uint16
	Username string
	Password string
	DBName   string

	InitSize int
	MaxSize  int

	MaxIdleTime       time.Duration // given in seconds in the config file
	ConnectionTimeout time.Duration // given in microseconds in the config file
}

// DSN renders the configuration as a go-sql-driver/mysql data source name.
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.Username, c.Password, c.IP, c.Port, c.DBName)
}

// LoadConfigFile parses a line-oriented key=value configuration file
// (spec.md §6): blank lines and lines without "=" are skipped, and value
// whitespace is trimmed. Recognized keys: ip, port, username, password,
// dbname, init_size, max_size, max_idle_time (seconds), connection_timeout
// (microseconds).
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("dbpool: open config: %w", err)
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig parses the key=value grammar from r.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := Config{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		var err error
		switch key {
		case "ip":
			cfg.IP = value
		case "port":
			var p int
			p, err = strconv.Atoi(value)
			cfg.Port = uint16(p)
		case "username":
			cfg.Username = value
		case "password":
			cfg.Password = value
		case "dbname":
			cfg.DBName = value
		case "init_size":
			cfg.InitSize, err = strconv.Atoi(value)
		case "max_size":
			cfg.MaxSize, err = strconv.Atoi(value)
		case "max_idle_time":
			var secs int
			secs, err = strconv.Atoi(value)
			cfg.MaxIdleTime = time.Duration(secs) * time.Second
		case "connection_timeout":
			var micros int
			micros, err = strconv.Atoi(value)
			cfg.ConnectionTimeout = time.Duration(micros) * time.Microsecond
		}
		if err != nil {
			return Config{}, fmt.Errorf("dbpool: config key %q: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("dbpool: read config: %w", err)
	}
	return cfg, nil
}
