// Command server runs the PTT classroom relay: the Room Registry, its
// HTTP API, and the WebSocket transport, all on one listener.
package main

import (
	"log"
	"net/http"

	"github.com/n0remac/classroom-ptt/internal/config"
	"github.com/n0remac/classroom-ptt/internal/httpapi"
	"github.com/n0remac/classroom-ptt/internal/logging"
	"github.com/n0remac/classroom-ptt/internal/room"
	"github.com/n0remac/classroom-ptt/internal/transport"
)

func main() {
	cfg := config.Load()
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))

	reg := room.NewRegistry(cfg.RoomTTL, cfg.DownloadCooldown, cfg.StorageDir, logger.With("registry"))
	go reg.Run()
	defer reg.Stop()

	// The HTTP API lives under /api/v1; room WebSocket connections are
	// accepted at the bare room code, so both are registered on the same
	// router with the API's more specific prefix matched first.
	router := httpapi.NewRouter(reg, logger.With("http"))
	transport.RegisterRoutes(router, reg, logger.With("ws"))

	logger.Infof("listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatal(err)
	}
}
