package main

import (
	"context"
	"os"

	"github.com/CynnixSinn/CyneticsIDE/internal/bridge"
	"github.com/CynnixSinn/CyneticsIDE/internal/collab"
	"github.com/CynnixSinn/CyneticsIDE/internal/config"
	"github.com/CynnixSinn/CyneticsIDE/internal/debug"
	"github.com/CynnixSinn/CyneticsIDE/internal/fsops"
	"github.com/CynnixSinn/CyneticsIDE/internal/observability"
	"github.com/CynnixSinn/CyneticsIDE/internal/server"
	"github.com/CynnixSinn/CyneticsIDE/internal/store"
	memstore "github.com/CynnixSinn/CyneticsIDE/internal/store/memory"
	mongostore "github.com/CynnixSinn/CyneticsIDE/internal/store/mongo"
)

func main() {
	cfg := config.Load()
	log := observability.Logger()
	ctx := context.Background()

	var st store.Store
	switch cfg.StoreBackend {
	case "mongo":
		log.Info("using mongo store", "uri", cfg.MongoURI, "db", cfg.MongoDB)
		ms, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Error("mongo store init failed", "err", err)
			os.Exit(1)
		}
		defer ms.Close(ctx)
		st = ms
	default:
		log.Info("using in-memory store")
		st = memstore.New()
	}

	var relay collab.Relay
	if cfg.RedisAddr != "" {
		log.Info("cross-node relay enabled", "addr", cfg.RedisAddr)
		r, err := bridge.NewRedisRelay(ctx, cfg.RedisAddr, log)
		if err != nil {
			log.Error("redis relay init failed", "err", err)
			os.Exit(1)
		}
		defer r.Close()
		relay = r
	}

	reg := collab.NewRegistry(relay, log)
	defer reg.Shutdown()
	files := fsops.NewService(st, reg, log)
	debugger := debug.NewManager(reg, log)

	srv := server.New(reg, files, debugger, log)
	if err := srv.Run(cfg.Addr); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}
