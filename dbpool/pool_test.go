package dbpool

import (
	"os"
	"testing"
	"time"
)

// Get/release/produce/reap all require a live MySQL instance to dial, so
// these run only when DBPOOL_TEST_DSN is set (its value is not read: the
// tests dial root@127.0.0.1:3306/app); CI without it skips them rather
// than failing.
func testConfig(t *testing.T) Config {
	t.Helper()
	dsn := os.Getenv("DBPOOL_TEST_DSN")
	if dsn == "" {
		t.Skip("DBPOOL_TEST_DSN not set, skipping dbpool integration test")
	}
	return Config{
		IP:                "127.0.0.1",
		Port:              3306,
		Username:          "root",
		DBName:            "app",
		InitSize:          2,
		MaxSize:           4,
		MaxIdleTime:       time.Second,
		ConnectionTimeout: 100 * time.Millisecond,
	}
}

func TestConnectionPoolGetAndRelease(t *testing.T) {
	cfg := testConfig(t)
	pool, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer pool.Close()

	if got := pool.Current(); got != cfg.InitSize {
		t.Fatalf("Current() = %d, want %d", got, cfg.InitSize)
	}

	lease, err := pool.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := pool.Idle(); got != cfg.InitSize-1 {
		t.Fatalf("Idle() after Get = %d, want %d", got, cfg.InitSize-1)
	}
	lease.Release()
	if got := pool.Idle(); got != cfg.InitSize {
		t.Fatalf("Idle() after Release = %d, want %d", got, cfg.InitSize)
	}
}

func TestConnectionPoolGetTimesOutWhenExhausted(t *testing.T) {
	cfg := testConfig(t)
	cfg.InitSize = 1
	cfg.MaxSize = 1
	pool, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer pool.Close()

	lease, err := pool.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer lease.Release()

	if _, err := pool.Get(); err != ErrTimeout {
		t.Fatalf("second Get() error = %v, want ErrTimeout", err)
	}
}
