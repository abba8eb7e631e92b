package adminhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleLoopStats(t *testing.T) {
	s := New(func() []LoopStats {
		return []LoopStats{{Index: 0, Looping: true, PendingFunctors: 2}}
	}, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/stats/loops", nil)
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got []LoopStats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 1 || !got[0].Looping || got[0].PendingFunctors != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestHandleLoopStatsUnavailable(t *testing.T) {
	s := New(nil, nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/stats/loops", nil)
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleWorkerPoolStats(t *testing.T) {
	s := New(nil, func() WorkerPoolStats {
		return WorkerPoolStats{Mode: "fixed", CurrentWorkers: 3, IdleWorkers: 2, QueuedTasks: 1, QueueCapacity: 10}
	}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/stats/workerpool", nil)
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got WorkerPoolStats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.CurrentWorkers != 3 || got.Mode != "fixed" {
		t.Fatalf("got %+v", got)
	}
}

func TestHandleWorkerPoolStatsUnavailable(t *testing.T) {
	s := New(nil, nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/stats/workerpool", nil)
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleDBPoolStats(t *testing.T) {
	s := New(nil, nil, func() DBPoolStats {
		return DBPoolStats{Current: 5, Idle: 4}
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/stats/dbpool", nil)
	s.Router().ServeHTTP(rec, req)

	var got DBPoolStats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Current != 5 || got.Idle != 4 {
		t.Fatalf("got %+v", got)
	}
}

func TestHandleHealthz(t *testing.T) {
	s := New(nil, nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("body = %q, want ok", rec.Body.String())
	}
}
