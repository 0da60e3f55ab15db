// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command fivemguard is the packet-filtering daemon: it loads a
// configuration record, wires the shared tracker tables to one
// capture worker per CPU, and serves the control-plane and metrics
// HTTP endpoints.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"grimm.is/fivemguard/internal/capture"
	"grimm.is/fivemguard/internal/fconfig"
	"grimm.is/fivemguard/internal/fctlapi"
	"grimm.is/fivemguard/internal/logging"
	"grimm.is/fivemguard/internal/metrics"
	"grimm.is/fivemguard/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL config file")
	preset := flag.String("preset", "medium", "Preset to use when -config is not set")
	target := flag.String("target", "", "Protected server IPv4 address")
	iface := flag.String("interface", "", "Network interface for raw AF_PACKET capture")
	nfqueue := flag.Uint("nfqueue", 0, "NFQUEUE number for inline enforcement (0 disables)")
	ctlAddr := flag.String("ctl-addr", ":8777", "Control-plane HTTP listen address")
	metricsAddr := flag.String("metrics-addr", ":9377", "Prometheus metrics listen address")
	workers := flag.Int("workers", runtime.NumCPU(), "Number of capture workers")
	flag.Parse()

	logger := logging.New(os.Stdout, slog.LevelInfo)

	cfg, err := loadConfig(*configPath, *preset, *target)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store := fconfig.NewStore(cfg)
	shared := pipeline.NewShared(store, nil)

	exporter := metrics.NewExporter(shared.Shards, shared.Perfs)
	ctl := fctlapi.New(store, shared.Attacks, shared)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctlServer := fctlapi.NewHTTPServer(*ctlAddr, ctl, fctlapi.DefaultServerConfig())
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: exporter.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go serveHTTP(ctx, logger, "control-plane", *ctlAddr, ctlServer)
	go serveHTTP(ctx, logger, "metrics", *metricsAddr, metricsServer)

	workerList := startCaptureWorkers(logger, shared, *iface, uint16(*nfqueue), *workers)
	logger.Info("fivemguard started", "workers", len(workerList), "preset", *preset)

	<-ctx.Done()
	logger.Info("shutting down")
	for _, w := range workerList {
		w.Stop()
	}
}

func loadConfig(configPath, preset, target string) (fconfig.Config, error) {
	if configPath != "" {
		return fconfig.LoadFile(configPath)
	}
	cfg, err := fconfig.Preset(preset, target)
	if err != nil {
		return fconfig.Config{}, err
	}
	return cfg, fconfig.Validate(cfg)
}

func serveHTTP(ctx context.Context, logger *slog.Logger, name, addr string, srv *http.Server) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("listening", "server", name, "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "server", name, "error", err)
	}
}

func startCaptureWorkers(logger *slog.Logger, shared *pipeline.Shared, ifaceName string, queueNum uint16, n int) []capture.Worker {
	var workerList []capture.Worker

	if queueNum != 0 {
		pl := shared.NewWorker(nil)
		w, err := capture.NewNFQueueWorker(queueNum, pl)
		if err != nil {
			logger.Error("failed to open NFQUEUE", "queue", queueNum, "error", err)
			return workerList
		}
		workerList = append(workerList, w)
		go runWorker(logger, "nfqueue", w)
		return workerList
	}

	if ifaceName == "" {
		return workerList
	}
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		logger.Error("failed to resolve interface", "interface", ifaceName, "error", err)
		return workerList
	}
	for i := 0; i < n; i++ {
		pl := shared.NewWorker(nil)
		w, err := capture.NewRawWorker(ifi, pl)
		if err != nil {
			logger.Error("failed to open raw capture", "interface", ifaceName, "error", err)
			continue
		}
		workerList = append(workerList, w)
		go runWorker(logger, "raw", w)
	}
	return workerList
}

func runWorker(logger *slog.Logger, kind string, w capture.Worker) {
	if err := w.Run(); err != nil {
		logger.Error("capture worker stopped", "kind", kind, "error", err)
	}
}
