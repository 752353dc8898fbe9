package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/shaamilshan/hamme/internal/cache"
	"github.com/shaamilshan/hamme/internal/config"
	"github.com/shaamilshan/hamme/internal/expiry"
	"github.com/shaamilshan/hamme/internal/handler"
	"github.com/shaamilshan/hamme/internal/notify"
	"github.com/shaamilshan/hamme/internal/repository"
	"github.com/shaamilshan/hamme/internal/service"
	"github.com/shaamilshan/hamme/internal/sweeper"
	"github.com/shaamilshan/hamme/pkg/database"
	"github.com/shaamilshan/hamme/pkg/jwt"
	pkglog "github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/middleware"
	"github.com/shaamilshan/hamme/pkg/pubsub"
	"github.com/shaamilshan/hamme/pkg/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "hamme",
	})
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Init DB (GORM, users always live here)
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to get underlying sql.DB")
	}
	defer sqlDB.Close()

	if err := repository.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// 4. Vote and match store
	userRepo := repository.NewGormUserRepository(db)
	var (
		voteRepo  repository.VoteRepository
		matchRepo repository.MatchRepository
	)
	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		dc := cfg.Store.DynamoDB
		client, err := repository.NewDynamoClient(ctx, repository.DynamoConfig{
			Region:          dc.Region,
			Endpoint:        dc.Endpoint,
			AccessKeyID:     dc.AccessKeyID,
			SecretAccessKey: dc.SecretAccessKey,
			VotesTable:      dc.VotesTable,
			MatchesTable:    dc.MatchesTable,
			PairsTable:      dc.PairsTable,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create dynamodb client")
		}
		voteRepo = repository.NewDynamoVoteRepository(client, dc.VotesTable)
		matchRepo = repository.NewDynamoMatchRepository(client, dc.MatchesTable, dc.PairsTable)
	default:
		voteRepo = repository.NewGormVoteRepository(db)
		matchRepo = repository.NewGormMatchRepository(db)
	}
	logger.Info().Str("backend", cfg.Store.Backend).Msg("vote and match store ready")

	// 5. Profile cache (optional)
	var profileCache cache.ProfileCache
	if cfg.Cache.Enabled {
		rc, err := cache.NewRedisProfileCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to redis, profile cache disabled")
		} else {
			profileCache = rc
			defer rc.Close()
			logger.Info().Str("addr", cfg.Redis.Address).Msg("profile cache connected")
		}
	}

	// 6. Event bus (optional)
	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Warn().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create pubsub, realtime notifications disabled")
		bus = nil
	}
	var (
		publisher  pubsub.Publisher
		subscriber pubsub.Subscriber
	)
	if bus != nil {
		publisher, subscriber = bus, bus
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("pubsub ready")
	}

	// 7. Object storage for pictures
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage")
	}

	// 8. Tokens and services
	tokens, err := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}

	hub := notify.NewHub()
	notifier := notify.NewNotifier(publisher)

	profileSvc := service.NewProfileService(userRepo, profileCache, store, service.ProfileConfig{
		CacheTTL:       cfg.Cache.TTL,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		URLTTL:         cfg.Upload.URLTTL,
	})
	userSvc := service.NewUserService(userRepo, tokens)
	matchingSvc := service.NewMatchingService(voteRepo, matchRepo, profileSvc, notifier, expiry.New())

	// 9. Expiry sweeper
	var sw *sweeper.Sweeper
	if cfg.Sweeper.Enabled {
		sw = sweeper.New(matchingSvc, tokens, cfg.Sweeper.Interval)
		sw.Start(ctx)
		logger.Info().Dur("interval", cfg.Sweeper.Interval).Msg("expiry sweeper started")
	}

	// 10. Rate limiter for choice submissions
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		limiter.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
	}

	// 11. Setup Gin router + HTTP server
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	httpHandler := handler.NewHandler(matchingSvc, userSvc, profileSvc, authMiddleware, handler.Options{
		ChoiceLimiter:  limiter,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	})
	wsHandler := handler.NewWSHandler(hub, subscriber, authMiddleware, notify.DefaultConfig(), cfg.CORS.AllowedOrigins)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	if ls, ok := store.(*storage.LocalStorage); ok {
		r.Static(ls.PublicPrefix(), ls.BasePath())
	}
	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}).Handler(r)

	// 12. Start server goroutine
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("hamme starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// 13. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		// 1. cancel() stops the sweeper ticker, limiter cleanup and subscriptions
		cancel()

		// 2. wait for the sweeper to finish its pass
		if sw != nil {
			sw.Stop()
			<-sw.Done()
		}

		// 3. close sockets and the event bus
		hub.CloseAll()
		if bus != nil {
			if err := bus.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing pubsub")
			}
		}

		// 4. server.Shutdown(5s) drains HTTP
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("hamme stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out")
	}
}
