package dbpool

import (
	"strings"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	input := `ip=127.0.0.1
port=3306
username=root
password=secret

# not a real comment line, just has no '='
dbname=app
init_size=5
max_size=20
max_idle_time=60
connection_timeout=1000
`
	cfg, err := ParseConfig(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.IP != "127.0.0.1" || cfg.Port != 3306 || cfg.Username != "root" || cfg.Password != "secret" || cfg.DBName != "app" {
		t.Fatalf("parsed connection fields = %+v", cfg)
	}
	if cfg.InitSize != 5 || cfg.MaxSize != 20 {
		t.Fatalf("parsed sizing fields = %+v", cfg)
	}
	if cfg.MaxIdleTime != 60*time.Second {
		t.Fatalf("MaxIdleTime = %v, want 60s", cfg.MaxIdleTime)
	}
	if cfg.ConnectionTimeout != 1000*time.Microsecond {
		t.Fatalf("ConnectionTimeout = %v, want 1000us", cfg.ConnectionTimeout)
	}
}

func TestParseConfigRejectsBadInt(t *testing.T) {
	_, err := ParseConfig(strings.NewReader("port=not-a-number\n"))
	if err == nil {
		t.Fatalf("expected error parsing non-numeric port")
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{IP: "db.internal", Port: 3306, Username: "u", Password: "p", DBName: "app"}
	want := "u:p@tcp(db.internal:3306)/app?parseTime=true"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
