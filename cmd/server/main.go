package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filmware-sync/auth"
	"filmware-sync/internal/config"
	"filmware-sync/internal/db"
	"filmware-sync/internal/identity"
	"filmware-sync/internal/record"
	"filmware-sync/internal/session"
	"filmware-sync/internal/stream"
	"filmware-sync/internal/worker"
	"filmware-sync/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close(database)

	// Migrate database schema
	if err := db.Migrate(database); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Initialize Redis
	redisClient, err := redis.Connect(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	// The change feed fans store-side notifications out to every connected
	// session's monitor.
	feed := stream.NewFeed(redisClient, cfg.StreamChannel)
	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	go func() {
		if err := feed.Run(feedCtx); err != nil && feedCtx.Err() == nil {
			log.Fatal().Err(err).Msg("change feed failed")
		}
	}()

	// A single worker keeps published events in commit order.
	pool := worker.NewPool(1)
	defer pool.Shutdown()

	// Initialize repositories
	recordRepo := record.NewRepository(database)
	identityRepo := identity.NewRepository(database)
	// Initialize services
	recordService := record.NewService(recordRepo, feed, pool, cfg.ServerID)
	identityService := identity.NewService(identityRepo, feed, pool, cfg.ServerID, cfg.SessionTTL)
	// Initialize handlers
	authManager := auth.New(&cfg, redisClient)
	identityHandler := identity.NewHandler(identityService, authManager)
	recordHandler := record.NewHandler(recordService)
	wsHandler := session.NewHandler(identityService, recordService, feed, cfg.FrontendAddress)

	// Initialize Gin router
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if cfg.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{cfg.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	// Account routes
	router.POST("/register", identityHandler.Register)
	router.POST("/login", identityHandler.Login)
	router.DELETE("/logout", authManager.Middleware(), identityHandler.Logout)
	router.GET("/profile", authManager.Middleware(), identityHandler.GetProfile)
	router.POST("/projects", authManager.Middleware(), identityHandler.CreateProject)
	router.POST("/permissions", authManager.Middleware(), identityHandler.GrantPermission)
	router.GET("/projects/:project/reports/:report/heads", authManager.Middleware(), recordHandler.GetReportHeads)

	// The sync protocol authenticates in-band over the socket.
	router.GET("/ws", wsHandler.Serve)

	// Server configuration
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Info().Str("port", cfg.ServerPort).Str("server_id", cfg.ServerID).Msg("server listening")
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server shutdown complete")
}
