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

// Package adminhttp exposes a read-only JSON view over a running server's
// event loops, worker pool and connection pool counters, routed with chi.
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
)

// LoopStats is a point-in-time snapshot of one reactor.EventLoop.
type LoopStats struct {
	Index           int  `json:"index"`
	Looping         bool `json:"looping"`
	PendingFunctors int  `json:"pending_functors"`
}

// WorkerPoolStats is a point-in-time snapshot of a workerpool.Pool.
type WorkerPoolStats struct {
	Mode           string `json:"mode"`
	CurrentWorkers int32  `json:"current_workers"`
	IdleWorkers    int32  `json:"idle_workers"`
	QueuedTasks    int    `json:"queued_tasks"`
	QueueCapacity  int    `json:"queue_capacity"`
}

// DBPoolStats is a point-in-time snapshot of a dbpool.ConnectionPool.
type DBPoolStats struct {
	Current int `json:"current"`
	Idle    int `json:"idle"`
}

// Server is a minimal read-only HTTP surface over reactor component
// counters. It never mutates server state: every route renders a snapshot
// obtained through a caller-supplied closure.
type Server struct {
	router chi.Router

	loopStats       func() []LoopStats
	workerPoolStats func() WorkerPoolStats
	dbPoolStats     func() DBPoolStats
}

// New builds a Server. Any stats closure may be nil, in which case its
// route answers 503.
func New(loopStats func() []LoopStats, workerPoolStats func() WorkerPoolStats, dbPoolStats func() DBPoolStats) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		loopStats:       loopStats,
		workerPoolStats: workerPoolStats,
		dbPoolStats:     dbPoolStats,
	}
	s.router.Get("/debug/stats/loops", s.handleLoopStats)
	s.router.Get("/debug/stats/workerpool", s.handleWorkerPoolStats)
	s.router.Get("/debug/stats/dbpool", s.handleDBPoolStats)
	s.router.Get("/healthz", s.handleHealthz)
	return s
}

// Router exposes the underlying chi.Router, e.g. for http.Serve or ListenAndServe.
func (s *Server) Router() chi.Router { return s.router }

func (s *Server) handleLoopStats(w http.ResponseWriter, r *http.Request) {
	if s.loopStats == nil {
		http.Error(w, "loop stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.loopStats())
}

func (s *Server) handleWorkerPoolStats(w http.ResponseWriter, r *http.Request) {
	if s.workerPoolStats == nil {
		http.Error(w, "workerpool stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.workerPoolStats())
}

func (s *Server) handleDBPoolStats(w http.ResponseWriter, r *http.Request) {
	if s.dbPoolStats == nil {
		http.Error(w, "dbpool stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.dbPoolStats())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
