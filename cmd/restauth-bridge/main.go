package main

import (
	"context"
	"log/slog"
	"syscall"

	evbus "github.com/vardius/message-bus"

	"github.com/fsonner/restauth-bridge/internal"
	"github.com/fsonner/restauth-bridge/internal/adapters"
	"github.com/fsonner/restauth-bridge/internal/app/api/core"
	handlersV0 "github.com/fsonner/restauth-bridge/internal/app/api/v0/handlers"
	"github.com/fsonner/restauth-bridge/internal/app/auth"
	"github.com/fsonner/restauth-bridge/internal/app/sync"
	"github.com/fsonner/restauth-bridge/internal/config"
	"github.com/fsonner/restauth-bridge/internal/domain"
)

func main() {
	ctx := internal.SignalAwareContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.GetConfig()
	internal.AssertNoError(err)

	internal.SetupLogging(cfg.Core.LogLevel, cfg.Core.LogJson)

	slog.Info("starting RestAuth bridge", "version", internal.Version)

	rawDb, err := adapters.NewDatabase(cfg.Database)
	internal.AssertNoError(err)

	database, err := adapters.NewSqlRepository(rawDb)
	internal.AssertNoError(err)

	metrics := adapters.NewMetricsServer(cfg)

	restAuth := adapters.NewRestAuthClient(&cfg.RestAuth, metrics)

	mailer := adapters.NewSmtpMailRepo(cfg.Mail)

	queueSize := 100
	eventBus := evbus.New(queueSize)

	defaults := domain.DefaultPreferencesFromConfig(cfg.Sync.DefaultPreferences)

	syncManager, err := sync.NewManager(cfg, defaults, eventBus, database, restAuth, metrics, mailer)
	internal.AssertNoError(err)

	authProvider, err := auth.NewProvider(cfg, eventBus, restAuth, database, syncManager)
	internal.AssertNoError(err)

	apiV0 := handlersV0.NewRestApi(cfg,
		handlersV0.NewAuthEndpoint(authProvider),
		handlersV0.NewUserEndpoint(authProvider, database, syncManager),
		handlersV0.NewGroupEndpoint(authProvider, database),
	)

	webSrv, err := core.NewServer(cfg, apiV0)
	internal.AssertNoError(err)

	if cfg.Web.MetricsListeningAddress != "" {
		go metrics.Run(ctx)
	}
	go webSrv.Run(ctx, cfg.Web.ListeningAddress)

	<-ctx.Done()

	slog.Info("stopped RestAuth bridge")
}
