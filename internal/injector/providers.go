// Package injector assembles a board server deployment from configuration.
package injector

import (
	"github.com/zeusync/boardsync/internal/collab/memapi"
	"github.com/zeusync/boardsync/internal/config"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/internal/realtime"
	"github.com/zeusync/boardsync/internal/server"
)

// Deployment is everything the server binary runs.
type Deployment struct {
	Logger *log.Logger
	Hub    *realtime.Hub
	API    *memapi.Server
	Server *server.Server
}

func ProvideLogger(cfg *config.Config) *log.Logger {
	logger := log.Provide()
	logger.SetLevel(cfg.Level())
	return logger
}

func ProvideHub(logger *log.Logger) *realtime.Hub {
	return realtime.NewHub(realtime.WithHubLogger(logger))
}

func ProvideAPI(hub *realtime.Hub, logger *log.Logger) *memapi.Server {
	return memapi.NewServer(hub, memapi.WithLogger(logger))
}

func ProvideServer(cfg *config.Config, api *memapi.Server, hub *realtime.Hub, logger *log.Logger) (*server.Server, func(), error) {
	srvCfg := cfg.ServerConfig()
	if err := srvCfg.Validate(); err != nil {
		return nil, nil, err
	}
	srv := server.NewServer(srvCfg, api, hub, logger)
	return srv, func() { _ = srv.Close() }, nil
}
