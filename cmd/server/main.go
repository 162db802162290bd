package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/adapter/cache"
	"github.com/andescharge/csms/internal/adapter/http/fiber/handlers"
	"github.com/andescharge/csms/internal/adapter/http/fiber/middleware"
	"github.com/andescharge/csms/internal/adapter/queue"
	"github.com/andescharge/csms/internal/adapter/storage/postgres"
	"github.com/andescharge/csms/internal/adapter/transport"
	vaultadapter "github.com/andescharge/csms/internal/adapter/vault"
	wsAdapter "github.com/andescharge/csms/internal/adapter/websocket"
	"github.com/andescharge/csms/internal/csms"
	"github.com/andescharge/csms/internal/observability/telemetry"
	"github.com/andescharge/csms/internal/ports"
	"github.com/andescharge/csms/internal/service/auth"
	"github.com/andescharge/csms/internal/service/chargepoint"
	"github.com/andescharge/csms/internal/service/control"
	"github.com/andescharge/csms/pkg/config"
)

const (
	serviceName    = "andescharge-csms"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting CSMS core",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.Tracing.Enabled {
		tracerProvider, err := telemetry.InitTracer(serviceName)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 4. Resolve secrets (Vault optional; config fallback)
	storeURL := cfg.Store.URL
	mqttPassword := cfg.MQTT.Password
	var secrets *vaultadapter.SecretManager
	if cfg.Vault.Enabled {
		secrets, err = vaultadapter.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.Warn("Vault not available, using config secrets", zap.Error(err))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if url, err := secrets.DatabaseURL(ctx); err == nil {
				storeURL = url
			}
			cancel()
		}
	}

	// 5. Initialize PostgreSQL store
	db, err := postgres.NewConnection(storeURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to store", zap.Error(err))
	}
	defer postgres.Close(db)

	if cfg.Store.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// 6. Initialize Redis cache, local fallback
	cacheStore, err := cache.NewRedisCache(cfg.Cache.URL, logger)
	if err != nil {
		logger.Warn("Redis not available, using in-memory cache", zap.Error(err))
		cacheStore = cache.NewLocalCache(time.Minute, logger)
	}
	defer cacheStore.Close()

	// 7. Initialize Message Queue - Optional
	messageQueue := newMessageQueue(cfg, logger)
	if messageQueue != nil {
		defer messageQueue.Close()
	}

	// 8. Initialize Repositories
	store := &csms.Store{
		ChargePoints: postgres.NewChargePointRepository(db, logger),
		Devices:      postgres.NewDeviceRepository(db, logger),
		Sessions:     postgres.NewSessionRepository(db, logger),
		Meters:       postgres.NewMeterValueRepository(db, logger),
		Events:       postgres.NewEventRepository(db, logger),
		IdTags:       postgres.NewIdTagRepository(db, logger),
		Orders:       postgres.NewOrderRepository(db, logger),
	}
	userRepo := postgres.NewUserRepository(db, logger)

	// 9. Initialize the OCPP engine
	engineCfg := csms.Config{
		HeartbeatInterval:   cfg.OCPP.HeartbeatInterval(),
		OfflineTimeout:      cfg.OCPP.OfflineTimeout(),
		CallTimeout:         cfg.OCPP.CallTimeout(),
		DedupWindow:         cfg.OCPP.DedupWindow(),
		AuthCacheTTL:        cfg.OCPP.AuthorizeCacheTTL(),
		SessionStaleTimeout: cfg.OCPP.SessionStaleTimeout(),
		OutboundQueueDepth:  cfg.OCPP.OutboundQueueDepth,
		InboxDepth:          cfg.OCPP.InboundBufferDepth,
		AutoProvision:       cfg.OCPP.AutoProvision,
	}
	router := csms.NewRouter(engineCfg, store, cacheStore, messageQueue, logger)
	router.Start()
	defer router.Stop()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 10. Transports: WebSocket always, MQTT when a broker is configured
	wsTransport := transport.NewWebSocketTransport(transport.WebSocketConfig{
		ListenAddr:    cfg.OCPP.WSListenAddr,
		InboundDepth:  cfg.OCPP.InboundBufferDepth,
		OutboundDepth: cfg.OCPP.OutboundQueueDepth,
	}, router, logger)
	go func() {
		if err := wsTransport.Start(rootCtx); err != nil {
			logger.Fatal("WebSocket transport failed", zap.Error(err))
		}
	}()

	var mqttTransport *transport.MQTTTransport
	if cfg.MQTT.BrokerURL != "" {
		mqttTransport = transport.NewMQTTTransport(transport.MQTTConfig{
			BrokerURL:      cfg.MQTT.BrokerURL,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       mqttPassword,
			QoS:            byte(cfg.MQTT.QoS),
			OfflineTimeout: cfg.MQTT.OfflineTimeout(),
		}, router, logger)
		if err := mqttTransport.Start(rootCtx); err != nil {
			logger.Warn("MQTT transport not available", zap.Error(err))
			mqttTransport = nil
		} else {
			defer mqttTransport.Close()
		}
	}

	// 11. Initialize Services (Business Logic Layer)
	authService := auth.NewService(userRepo, cfg.JWT.Secret, logger)
	var secretSource ports.SecretSource
	if secrets != nil {
		secretSource = secrets
	}
	chargerService := chargepoint.NewService(store.ChargePoints, store.Devices, store.Sessions, store.Events, cacheStore, router, secretSource, messageQueue, logger)
	controlService := control.NewService(router, store.Sessions, cfg.OCPP.CallTimeout(), logger)

	// 12. Rebuild the advisory liveness cache from the audit log
	if err := chargerService.RebuildLivenessCache(rootCtx); err != nil {
		logger.Warn("Failed to rebuild liveness cache", zap.Error(err))
	}

	// 13. Initialize WebSocket Hub (for real-time dashboard updates)
	wsHub := wsAdapter.NewHub()
	go wsHub.Run()

	// 14. Background workers (only with a message queue)
	if messageQueue != nil {
		go startBackgroundWorkers(messageQueue, wsHub, logger)
	}

	// 15. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORS.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	app.Use(middleware.CircuitBreakerWithLogger(logger))

	// Health Check Endpoints
	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.Status(503).SendString("Store not ready")
		}
		if err := cacheStore.Ping(); err != nil {
			return c.Status(503).SendString("Cache not ready")
		}
		return c.SendString("Ready")
	})

	// Metrics endpoint for Prometheus
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	registerRoutes(app, authService, chargerService, controlService, wsHub, logger)

	// 16. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 17. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	wsTransport.Close()

	logger.Info("Server exited gracefully")
}

func registerRoutes(
	app *fiber.App,
	authService ports.AuthService,
	chargerService ports.ChargePointService,
	controlService ports.ControlService,
	wsHub *wsAdapter.Hub,
	logger *zap.Logger,
) {
	authHandler := handlers.NewAuthHandler(authService, logger)
	chargerHandler := handlers.NewChargerHandler(chargerService, logger)
	commandHandler := handlers.NewCommandHandler(controlService, chargerService, logger)
	statsHandler := handlers.NewStatisticsHandler(chargerService, logger)

	v1 := app.Group("/api/v1")
	v1.Post("/auth/login", authHandler.Login)

	protected := v1.Group("", middleware.AuthRequired(authService))

	// pending MUST come before :id to avoid matching "pending" as id param
	protected.Get("/chargers", chargerHandler.List)
	protected.Get("/chargers/pending", chargerHandler.ListPending)
	protected.Post("/chargers", chargerHandler.Create)
	protected.Get("/chargers/:id", chargerHandler.Get)
	protected.Get("/chargers/:id/history", chargerHandler.History)
	protected.Get("/chargers/:id/credentials", chargerHandler.Credentials)
	protected.Post("/chargers/:id/reset", commandHandler.Reset)
	protected.Post("/chargers/:id/change-availability", commandHandler.ChangeAvailability)
	protected.Post("/chargers/:id/trigger-message", commandHandler.TriggerMessage)
	protected.Post("/chargers/:id/unlock-connector", commandHandler.UnlockConnector)
	protected.Post("/chargers/:id/diagnostics", commandHandler.GetDiagnostics)
	protected.Post("/chargers/:id/firmware", commandHandler.UpdateFirmware)

	protected.Get("/statistics/charger/:id/heartbeat-history", statsHandler.HeartbeatHistory)
	protected.Get("/statistics/charger/:id/status-timeline", statsHandler.StatusTimeline)

	// Legacy command paths kept for the existing dashboard
	api := app.Group("/api", middleware.AuthRequired(authService))
	api.Post("/remoteStart", commandHandler.RemoteStart)
	api.Post("/remoteStop", commandHandler.RemoteStop)
	api.Post("/updateLocation", commandHandler.UpdateLocation)
	api.Post("/updatePrice", commandHandler.UpdatePrice)

	// WebSocket upgrade for dashboard live updates
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/updates", websocket.New(func(c *websocket.Conn) {
		userID := c.Query("userId", "operator")
		wsHub.AddClient(c, userID)
	}))
}

func newMessageQueue(cfg *config.Config, logger *zap.Logger) queue.MessageQueue {
	switch cfg.Queue.Kind {
	case "rabbitmq":
		mq, err := queue.NewRabbitMQQueue(cfg.Queue.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without message queue", zap.Error(err))
			return nil
		}
		return mq
	default:
		mq, err := queue.NewNATSQueue(cfg.Queue.NATSURL, logger)
		if err != nil {
			logger.Warn("NATS not available, running without message queue", zap.Error(err))
			return nil
		}
		return mq
	}
}

// startBackgroundWorkers bridges queue events to the dashboard hub and logs
// billing fan-out.
func startBackgroundWorkers(mq queue.MessageQueue, wsHub *wsAdapter.Hub, logger *zap.Logger) {
	logger.Info("Starting background workers")

	relay := func(subject string) {
		mq.Subscribe(subject, func(msg []byte) error {
			envelope, err := json.Marshal(map[string]interface{}{
				"subject": subject,
				"payload": json.RawMessage(msg),
			})
			if err != nil {
				return err
			}
			wsHub.Broadcast(envelope)
			return nil
		})
	}
	relay(queue.SubjectDeviceEvents)
	relay(queue.SubjectTransactionStarted)
	relay(queue.SubjectTransactionCompleted)

	mq.Subscribe(queue.SubjectBillingEvents, func(msg []byte) error {
		var event struct {
			ChargePointID string  `json:"charge_point_id"`
			TransactionID int     `json:"transaction_id"`
			EnergyKWh     float64 `json:"energy_kwh"`
			Amount        float64 `json:"amount"`
			Currency      string  `json:"currency"`
		}
		if err := json.Unmarshal(msg, &event); err != nil {
			logger.Error("Failed to unmarshal billing event", zap.Error(err))
			return err
		}
		logger.Info("Billing event processed",
			zap.String("charge_point_id", event.ChargePointID),
			zap.Int("transaction_id", event.TransactionID),
			zap.Float64("energy_kwh", event.EnergyKWh),
			zap.Float64("amount", event.Amount),
			zap.String("currency", event.Currency),
		)
		return nil
	})
}
