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

// Command reactor-echo runs a thread-num-N echo server over the reactor
// package: whatever bytes a client sends are written straight back.
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kami-reactor/reactor/adminhttp"
	"github.com/kami-reactor/reactor/dbpool"
	"github.com/kami-reactor/reactor/reactor"
	"github.com/kami-reactor/reactor/workerpool"
)

var (
	listenHost    string
	listenPort    uint16
	threadNum     int
	adminAddr     string
	logFile       string
	debugLog      bool
	workerThreads int
	dbConfigFile  string
)

func init() {
	rootCmd.Flags().StringVar(&listenHost, "host", "0.0.0.0", "listen host")
	rootCmd.Flags().Uint16Var(&listenPort, "port", 8000, "listen port")
	rootCmd.Flags().IntVar(&threadNum, "threads", 3, "sub-reactor thread count, 0 for single-reactor")
	rootCmd.Flags().StringVar(&adminAddr, "admin-addr", "127.0.0.1:8001", "admin stats HTTP listen address")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "rotated log file path; empty logs to stderr")
	rootCmd.Flags().BoolVar(&debugLog, "debug", false, "enable debug-level logging")
	rootCmd.Flags().IntVar(&workerThreads, "worker-threads", 4, "background task pool worker count, used to log connection lifecycle off the reactor thread")
	rootCmd.Flags().StringVar(&dbConfigFile, "db-config", "", "dbpool key=value config file; empty disables the connection pool and its admin stats route")
}

var rootCmd = &cobra.Command{
	Use:   "reactor-echo",
	Short: "Runs a multi-reactor TCP echo server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	logger, err := reactor.NewZapLogger(reactor.LoggerConfig{
		Filename:   logFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 7,
		Compress:   true,
		Debug:      debugLog,
	})
	if err != nil {
		return err
	}

	baseLoop, err := reactor.NewEventLoop(logger)
	if err != nil {
		return err
	}

	addr := reactor.NewInetAddressFromHostPort(listenHost, listenPort)
	server, err := reactor.NewTcpServer(baseLoop, addr, "reactor-echo", reactor.NoReusePort, logger)
	if err != nil {
		return err
	}
	server.SetThreadNum(threadNum)

	pool := workerpool.NewPool(workerpool.Fixed, logger)
	pool.Start(workerThreads)

	server.SetConnectionCallback(func(conn *reactor.TcpConnection) {
		onConnection(conn, pool)
	})
	server.SetMessageCallback(onMessage)

	var dbPool *dbpool.ConnectionPool
	if dbConfigFile != "" {
		cfg, err := dbpool.LoadConfigFile(dbConfigFile)
		if err != nil {
			return err
		}
		dbPool, err = dbpool.Open(cfg, logger)
		if err != nil {
			return err
		}
	}

	admin := adminhttp.New(loopStatsFunc(server), workerPoolStatsFunc(pool), dbPoolStatsFunc(dbPool))
	adminServer := &http.Server{Addr: adminAddr, Handler: admin.Router()}
	go func() {
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("admin http server: %v", err)
		}
	}()

	server.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("reactor-echo: shutting down")
		server.Stop()
		pool.Stop()
		if dbPool != nil {
			_ = dbPool.Close()
		}
		_ = adminServer.Close()
		baseLoop.Quit()
	}()

	baseLoop.Run()
	return nil
}

// loopStatsFunc snapshots every reactor loop serving server.
func loopStatsFunc(server *reactor.TcpServer) func() []adminhttp.LoopStats {
	return func() []adminhttp.LoopStats {
		loops := server.Loops()
		stats := make([]adminhttp.LoopStats, len(loops))
		for i, l := range loops {
			stats[i] = adminhttp.LoopStats{
				Index:           i,
				Looping:         l.IsLooping(),
				PendingFunctors: l.PendingFunctorCount(),
			}
		}
		return stats
	}
}

// workerPoolStatsFunc snapshots the background task pool's counters.
func workerPoolStatsFunc(pool *workerpool.Pool) func() adminhttp.WorkerPoolStats {
	return func() adminhttp.WorkerPoolStats {
		return adminhttp.WorkerPoolStats{
			Mode:           pool.Mode().String(),
			CurrentWorkers: pool.CurrentWorkers(),
			IdleWorkers:    pool.IdleWorkers(),
			QueuedTasks:    pool.QueueLen(),
			QueueCapacity:  pool.QueueCap(),
		}
	}
}

// dbPoolStatsFunc snapshots the connection pool's counters, or nil if
// --db-config was never given — adminhttp answers 503 on that route then.
func dbPoolStatsFunc(pool *dbpool.ConnectionPool) func() adminhttp.DBPoolStats {
	if pool == nil {
		return nil
	}
	return func() adminhttp.DBPoolStats {
		return adminhttp.DBPoolStats{Current: pool.Current(), Idle: pool.Idle()}
	}
}

// onConnection logs the connection's lifecycle transitions through the
// background task pool, off the reactor thread.
func onConnection(conn *reactor.TcpConnection, pool *workerpool.Pool) {
	name, peer := conn.Name(), conn.PeerAddr()
	connected := conn.IsConnected()
	pool.Submit(func() (interface{}, error) {
		if connected {
			log.Printf("reactor-echo: connection %s established from %s", name, peer.ToIPPort())
		} else {
			log.Printf("reactor-echo: connection %s closed", name)
		}
		return nil, nil
	})
}

func onMessage(conn *reactor.TcpConnection, input *reactor.Buffer, receiveTime reactor.Timestamp) {
	msg := input.RetrieveAllAsString()
	conn.Send([]byte(msg))
}
