package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gowa-gateway/config"
	"gowa-gateway/database"
	"gowa-gateway/internal/handler"
	"gowa-gateway/internal/logger"
	customMiddleware "gowa-gateway/internal/middleware"
	"gowa-gateway/internal/service"
	"gowa-gateway/internal/ws"
)

const autoConnectWait = 5 * time.Second

func main() {
	flags := pflag.NewFlagSet("gowa-gateway", pflag.ContinueOnError)
	envFile := flags.String("env-file", "", "path to an env file (default .env)")
	port := flags.String("port", "", "listen port, overrides PORT")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.Load(*envFile)
	if *port != "" {
		cfg.Port = *port
	}

	flush, err := logger.Init(logger.Options{
		Production: cfg.IsProduction(),
		Level:      cfg.LogLevel,
		Filename:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer flush()

	if err := run(cfg); err != nil {
		zap.L().Error("gateway stopped with error", zap.Error(err))
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// whatsmeow device store
	container, err := database.OpenSessionStore(ctx, cfg.SessionPath, cfg.SessionDatabaseURL)
	if err != nil {
		return err
	}
	defer container.Close()

	// QR codes are also printed to the terminal outside production.
	var qrOut io.Writer
	if !cfg.IsProduction() {
		qrOut = os.Stdout
	}
	connector := service.NewWhatsmeowConnector(container, cfg.DeviceName, qrOut)
	store := service.NewDeviceStore(container)
	tracker := service.NewTracker(connector, store, service.TrackerOptions{})

	hub := ws.NewHub()
	go hub.Run(ctx)
	tracker.Subscribe(handler.PublishTo(hub))

	if cfg.WebhookURL != "" {
		tracker.Subscribe(service.NewWebhookForwarder(cfg.WebhookURL, cfg.WebhookSecret).Notify)
		zap.L().Info("webhook forwarding enabled", zap.String("url", cfg.WebhookURL))
	}

	if cfg.APIKey == "" {
		zap.L().Warn("API_KEY is not set, every /api request will be rejected")
	}

	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(customMiddleware.RequestLogger())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			"X-API-Key",
			"api-key",
		},
	}))

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimitPerSecond),
				Burst:     cfg.RateLimitBurst,
				ExpiresIn: 3 * time.Minute,
			},
		),
	}))

	gateway := handler.NewGateway(tracker, store, hub, cfg.MessageFooter)
	gateway.Register(e, customMiddleware.APIKeyAuth(cfg.APIKey))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	logRoutes(cfg)

	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go tracker.AutoConnect(ctx, autoConnectWait)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	zap.L().Warn("shutting down...")
	if tracker.Snapshot().HasSession {
		zap.L().Info("closing whatsapp connection")
	}
	// Disconnect logs its own close failure.
	_ = tracker.Disconnect(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	zap.L().Info("server stopped")
	return nil
}

func logRoutes(cfg *config.Config) {
	log := zap.S()
	log.Infof("whatsapp gateway listening on port %s (%s)", cfg.Port, cfg.Environment)
	if len(cfg.APIKey) >= 10 {
		log.Infof("API key: %s...", cfg.APIKey[:10])
	}
	log.Info("available endpoints:")
	log.Info("  GET  /health            - health check")
	log.Info("  GET  /api/status        - connection status")
	log.Info("  GET  /api/qr            - pairing QR code")
	log.Info("  POST /api/connect       - connect whatsapp")
	log.Info("  POST /api/disconnect    - disconnect whatsapp")
	log.Info("  POST /api/logout        - unlink device and remove session")
	log.Info("  POST /api/send-message  - send a text message")
	log.Info("  GET  /api/listen        - websocket event stream")
	log.Info("  GET  /metrics           - prometheus metrics")
	log.Infof("health check: http://localhost:%s/health", cfg.Port)
}
