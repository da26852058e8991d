// Command pttserver is the entry point for the push-to-talk coordination
// server: it loads configuration, wires the Session Registry, Floor
// Arbiter, Broadcast Dispatcher, and Capture Source together, and serves
// the control-channel and recordings HTTP API until interrupted.
//
// Grounded on the teacher's server/main.go bootstrap and generalized with
// the config-file-flag + signal.NotifyContext shutdown idiom shown in
// MrWong99-glyphoxa's cmd/glyphoxa/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gamasenninn/ptt/internal/broadcast"
	"github.com/gamasenninn/ptt/internal/capture"
	"github.com/gamasenninn/ptt/internal/config"
	"github.com/gamasenninn/ptt/internal/floor"
	"github.com/gamasenninn/ptt/internal/httpapi"
	"github.com/gamasenninn/ptt/internal/logging"
	"github.com/gamasenninn/ptt/internal/recordings"
	"github.com/gamasenninn/ptt/internal/session"
	"github.com/gamasenninn/ptt/internal/wsserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional path to a config file; set STREAM_*/PTT_*/TURN_*/RECORDINGS_DIR/LOG_* environment variables take precedence over it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pttserver: %v\n", err)
		return 1
	}

	logFile, err := logging.Configure(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pttserver: configuring logging: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger := slog.Default().With("component", "pttserver")
	logger.Info("starting",
		"host", cfg.ServerHost,
		"port", cfg.ServerPort,
		"floorTimeout", cfg.FloorTimeout,
		"recordingsDir", cfg.RecordingsDir,
	)

	registry := session.NewRegistry()
	arbiter := floor.NewArbiter(cfg.FloorTimeout)
	dispatcher := broadcast.New()
	captureSrc := capture.NewSource()
	captureSrc.Start()

	store := recordings.NewStore(cfg.RecordingsDir)
	api := httpapi.NewHandler(store)

	srv := wsserver.New(registry, arbiter, dispatcher, captureSrc, cfg.ICEServers)
	srv.Start()

	mux := http.NewServeMux()
	srv.Routes(mux)
	api.Routes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "err", err)
			shutdown(logger, httpServer, srv, dispatcher, captureSrc)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdown(logger, httpServer, srv, dispatcher, captureSrc)
	logger.Info("goodbye")
	return 0
}

// shutdown stops accepting new connections, then tears the shared
// components down in dependency order: the control-channel tick loop first
// (so no new floor-timeout broadcasts are enqueued), then every live
// session is instructed to close and its peer connection awaited (spec
// section 7: "Shutdown is cooperative"), then the Broadcast Dispatcher (so
// no in-flight broadcast from a session's own teardown is lost), then the
// Capture Source last, once no subscriber can still be attached.
func shutdown(logger *slog.Logger, httpServer *http.Server, srv *wsserver.Server, dispatcher *broadcast.Dispatcher, captureSrc *capture.Source) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown error", "err", err)
	}
	srv.Stop()
	srv.Shutdown()
	dispatcher.Stop()
	captureSrc.Stop()
}
