package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-automation/internal/api"
	"whatsapp-automation/internal/automation"
	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/conversation"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/events"
	"whatsapp-automation/internal/media"
	"whatsapp-automation/internal/middleware"
	"whatsapp-automation/internal/templates"
	"whatsapp-automation/internal/tenant"
	"whatsapp-automation/internal/webhook"
	"whatsapp-automation/internal/whatsapp"
	"whatsapp-automation/internal/ws"
	"whatsapp-automation/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const eventTimeout = 5 * time.Second

func main() {
	cfg := config.LoadConfig()

	zlog, err := logger.New(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Open(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open database", zap.Error(err))
	}
	store := database.NewStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []events.Publisher
	var hub *ws.Hub
	if cfg.DashboardToken != "" {
		hub = ws.NewHub(cfg.DashboardToken, zlog.Named("ws"))
		go hub.Run(ctx)
		sinks = append(sinks, hub)
	}
	if cfg.RabbitMQURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, zlog.Named("rabbitmq"))
		if err != nil {
			zlog.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer rabbit.Close()
		sinks = append(sinks, rabbit)
	}
	publisher := events.NewFanout(zlog.Named("events"), eventTimeout, sinks...)

	clients := whatsapp.NewFactory(cfg)
	tenants := tenant.NewResolver(store, clients, zlog.Named("tenant"))
	engine := automation.NewEngine(store, publisher, cfg.FlowMaxChainDepth, zlog.Named("automation"))
	writer := conversation.NewWriter(store, zlog.Named("conversation"))
	pipeline := webhook.NewPipeline(webhook.PipelineDeps{
		Messages: store,
		Media:    media.NewResolver(cfg.MediaFetchTimeout, zlog.Named("media")),
		Contacts: conversation.NewResolver(store, zlog.Named("conversation")),
		Writer:   writer,
		Engine:   engine,
		Events:   publisher,
	}, zlog.Named("pipeline"))
	sync := templates.NewSynchronizer(store, publisher, zlog.Named("templates"))
	webhookHandler := webhook.NewHandler(tenants, webhook.NewRouter(pipeline, sync, zlog.Named("router")), cfg.MaxBodyBytes, zlog.Named("webhook"))

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(zlog.Named("http")))

	r.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if hub != nil {
		r.GET("/ws/:tenantId", hub.ServeWs)
		api.NewAutomationHandler(store, writer, publisher, zlog.Named("api")).RegisterRoutes(r, cfg.DashboardToken)
	}
	webhookHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
