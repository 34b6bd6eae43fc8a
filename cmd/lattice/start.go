package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lattice-im/lattice/internal/api/handlers"
	"github.com/lattice-im/lattice/internal/api/middleware"
	"github.com/lattice-im/lattice/internal/auth"
	"github.com/lattice-im/lattice/internal/config"
	"github.com/lattice-im/lattice/internal/crypto"
	"github.com/lattice-im/lattice/internal/database"
	"github.com/lattice-im/lattice/internal/filter"
	"github.com/lattice-im/lattice/internal/services"
	"github.com/lattice-im/lattice/internal/streams"
	"github.com/lattice-im/lattice/internal/websocket"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Lattice server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runStart(ctx)
	},
}

func makeLogger(debug bool) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logConfig.Encoding = "json"

	return logConfig.Build()
}

func runStart(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log, err := makeLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("opening database", zap.String("path", cfg.DatabasePath))
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	jwtManager, err := crypto.NewJWTManager(cfg.MasterSecret)
	if err != nil {
		return err
	}

	authSvc := auth.NewTokenAuth(jwtManager)
	filters := filter.NewStore(db.DB)

	// Local collaborators. A federated deployment replaces these with
	// clients for the real presence/typing/sync services.
	store := streams.NewStore()
	receipts := services.NewReceiptStore(db.DB)
	writer := services.NewEventWriter(cfg.ServerName, store)
	typing := services.NewTypingTracker()
	defer typing.Close()

	svc := &services.Registry{
		Presence:    services.NewPresenceTracker(),
		Typing:      typing,
		Receipts:    receipts,
		ReadMarkers: receipts,
		Events:      writer,
		Membership:  writer,
		Audit:       services.NewAuditStore(db.DB),
		Sync:        store,
	}

	factory, err := websocket.NewFactory(cfg, log, authSvc, filters, svc, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(log, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(log, true))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to Lattice Server!")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The websocket edge. Credentials travel in the query string, so no
	// auth middleware here; the factory does its own handshake.
	router.GET("/_lattice/client/ws", factory.HandleConnect)

	filterHandler := handlers.NewFilterHandler(filters, cfg.FilterTimelineLimit)

	protected := router.Group("/v1")
	protected.Use(middleware.AuthMiddleware(authSvc))
	{
		protected.GET("/whoami", handlers.GetWhoAmI)
		protected.POST("/user/filter", filterHandler.PostFilter)
		protected.GET("/user/filter/:id", filterHandler.GetFilter)
	}

	s := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	// Initializing the server in a goroutine so that it won't block the
	// graceful shutdown handling below
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server errored", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
