package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"

	"unipass/config"
	"unipass/internal/handlers"
	"unipass/monitoring"
	"unipass/security"
	"unipass/services"
	"unipass/store"
	"unipass/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	if cfg.IsProduction() {
		slog.SetLogLoggerLevel(slog.LevelInfo)
	} else {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	ticketStore := store.NewPocketBase(app)
	allocator := services.NewAllocator(ticketStore)
	qrGenerator := services.NewQRGenerator(cfg.QRCodeSize)

	notifiers := []services.Notifier{
		services.NewTicketMailer(app, cfg.MailFrom, cfg.MailFromName),
	}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId("unipass-server"))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		notifiers = append(notifiers, services.NewEventPublisher(pubnub.NewPubNub(pnConfig), cfg.PubNubChannel))
	}

	ticketService := services.NewTicketService(ticketStore, allocator, qrGenerator, cfg.StoreTimeout, notifiers...)

	// Initialize handlers
	ticketHandler := handlers.NewTicketHandler(app, ticketService)
	scanHandler := handlers.NewScanHandler(app, ticketService)
	scanThrottle := security.NewScanThrottle(redisClient, cfg.ScanRateLimit, cfg.ScanRateWindow)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	if cfg.EnableMetrics {
		monitor := monitoring.NewMonitor(ticketService, cfg.MetricsInterval)
		go monitor.Run(ctx)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Ticket endpoints
		e.Router.POST("/api/tickets", ticketHandler.Create).Bind(apis.RequireAuth())
		e.Router.GET("/api/tickets", ticketHandler.List).Bind(apis.RequireAuth())
		e.Router.GET("/api/tickets/metrics", ticketHandler.Metrics).Bind(apis.RequireAuth())
		e.Router.GET("/api/tickets/{id}", ticketHandler.Get).Bind(apis.RequireAuth())
		e.Router.PUT("/api/tickets/{id}", ticketHandler.Update).Bind(apis.RequireAuth())
		e.Router.DELETE("/api/tickets/{id}", ticketHandler.Delete).Bind(apis.RequireAuth())

		// Scan endpoint
		scanRoute := e.Router.POST("/api/scan", scanHandler.Scan)
		scanRoute.Bind(apis.RequireAuth())
		scanRoute.BindFunc(scanThrottle.Middleware())

		// Prometheus
		if cfg.EnableMetrics {
			e.Router.GET("/metrics", func(e *core.RequestEvent) error {
				promhttp.Handler().ServeHTTP(e.Response, e.Request)
				return nil
			})
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		slog.Info("server routes registered")

		return e.Next()
	})

	// Start server
	return app.Start()
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
