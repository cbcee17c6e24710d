package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargehub/internal/config"
	"chargehub/internal/db"
	httpserver "chargehub/internal/http"
	"chargehub/internal/http/handlers"
	"chargehub/internal/mqtt"
	"chargehub/internal/observability/metrics"
	"chargehub/internal/redisstore"
	"chargehub/internal/repository"
	"chargehub/internal/service"
)

// App wires the coordinator dependencies.
type App struct {
	server      *httpserver.Server
	connector   *mqtt.Connector
	coordinator *service.Coordinator
	reconciler  *service.Reconciler
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := redisstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	connector, err := mqtt.NewConnector(mqtt.Config{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  cfg.MQTT.ClientID,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
	}, logger)
	if err != nil {
		redisClient.Close()
		sqlDB.Close()
		return nil, err
	}

	portRepo := repository.NewPortRepository(sqlDB)
	sessionRepo := repository.NewSessionRepository(sqlDB)
	stationRepo := repository.NewStationRepository(sqlDB)
	sampleRepo := repository.NewConsumptionRepository(sqlDB)
	statusRepo := repository.NewStatusLogRepository(sqlDB)

	liveStore := redisstore.NewStore(redisClient, cfg.ActiveSessionTTL())

	coordinator := service.NewCoordinator(service.CoordinatorConfig{
		Ports:             portRepo,
		Sessions:          sessionRepo,
		Samples:           sampleRepo,
		StatusLog:         statusRepo,
		Stations:          stationRepo,
		Publisher:         connector,
		Live:              liveStore,
		Logger:            logger,
		InactivityTimeout: cfg.InactivityTimeout(),
	})
	reconciler := service.NewReconciler(coordinator, sessionRepo, cfg.ReconcileInterval(), logger)

	metrics.MustRegister()

	controlHandler := handlers.NewControlHandler(coordinator, logger)
	routes := httpserver.Routes{
		SessionStart: controlHandler.HandleSessionStart,
		SessionStop:  controlHandler.HandleSessionStop,
		Health:       handlers.NewHealthHandler(),
		Metrics:      promhttp.Handler(),
	}
	server := httpserver.NewServer(cfg.HTTPAddress(), httpserver.NewRouter(routes), logger)

	return &App{
		server:      server,
		connector:   connector,
		coordinator: coordinator,
		reconciler:  reconciler,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run attaches to the broker, starts the reconciler and serves HTTP until the
// context is cancelled. It returns only after the reconciler has stopped.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.connector.Connect(runCtx); err != nil {
		return err
	}
	if err := a.connector.SubscribeTelemetry(runCtx, a.coordinator); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.reconciler.Run(runCtx)
	}()

	err := a.server.Run(ctx)
	cancel()
	<-done
	return err
}

// Close releases resources: drain the coordinator, release the store, then
// the broker connection. The transport closes after the drain so the final
// OFF commands still reach the broker.
func (a *App) Close() {
	if a.coordinator != nil {
		a.coordinator.Shutdown()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.connector != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.connector.Disconnect(ctx); err != nil {
			a.logger.Warn("failed to disconnect mqtt", zap.Error(err))
		}
		cancel()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
