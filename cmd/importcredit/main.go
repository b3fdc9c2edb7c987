package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/iurnickita/importcredit/internal/auth"
	"github.com/iurnickita/importcredit/internal/config"
	"github.com/iurnickita/importcredit/internal/handler"
	"github.com/iurnickita/importcredit/internal/idempotency"
	"github.com/iurnickita/importcredit/internal/logger"
	"github.com/iurnickita/importcredit/internal/service"
	"github.com/iurnickita/importcredit/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	keeper, err := idempotency.NewKeeper(context.Background(), cfg.Idempotency)
	if err != nil {
		return err
	}

	service, err := service.NewService(cfg.Service, store, keeper, zaplog)
	if err != nil {
		return err
	}
	auth := auth.NewAuth(cfg.Auth)

	zaplog.Info("starting server",
		zap.String("addr", cfg.Handler.ServerAddr),
		zap.Bool("postgres", cfg.Store.DBDsn != ""),
		zap.Bool("idempotency", cfg.Idempotency.RedisAddr != ""),
		zap.Bool("platform", cfg.Service.PlatformAddr != ""),
	)
	return handler.Serve(cfg.Handler, auth, service, zaplog)
}
