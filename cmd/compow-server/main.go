package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/P-eter-shi/compow/internal/config"
	"github.com/P-eter-shi/compow/internal/connection"
	"github.com/P-eter-shi/compow/internal/dispatch"
	"github.com/P-eter-shi/compow/internal/event"
	"github.com/P-eter-shi/compow/internal/logger"
	"github.com/P-eter-shi/compow/internal/metrics"
	"github.com/P-eter-shi/compow/internal/presence"
	"github.com/P-eter-shi/compow/internal/server"
)

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init()
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	registry := presence.NewRegistry()
	manager := connection.NewManager()
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry, registry)
	dispatcher := dispatch.NewDispatcher(registry, collector)

	srv, err := server.NewServer(cfg, registry, manager, dispatcher, collector, promRegistry)
	if err != nil {
		logger.FatalF("Error occured while initializing server, details: %v", err)
		return
	}
	cleaner.Add(srv.ShutdownCallback())

	if err := srv.Start(); err != nil {
		logger.FatalF("Relay server error: %v", err)
	}
}
