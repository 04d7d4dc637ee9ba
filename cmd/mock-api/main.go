package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-storefront/internal/mockapi"
	pkgauth "github.com/angelmondragon/packfinderz-storefront/pkg/auth"
	refreshsession "github.com/angelmondragon/packfinderz-storefront/pkg/auth/session"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "mock-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadMockAPI()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "mock-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var refreshStore refreshsession.Store = refreshsession.NewMemoryStore()
	if cfg.MockAPI.UseRedis {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		refreshStore = redisClient
	}

	manager, err := refreshsession.NewManager(refreshStore, cfg.MockAPI.RefreshTokenTTL)
	if err != nil {
		logg.Error(ctx, "failed to create refresh token manager", err)
		os.Exit(1)
	}

	srv, err := mockapi.NewServer(mockapi.Params{
		Logger: logg,
		Tokens: pkgauth.TokenConfig{
			Secret: cfg.MockAPI.JWTSecret,
			Issuer: cfg.MockAPI.JWTIssuer,
			TTL:    cfg.MockAPI.AccessTokenTTL,
		},
		Refresh:         manager,
		PrincipalHeader: cfg.API.PrincipalHeader,
	})
	if err != nil {
		logg.Error(ctx, "failed to create mock api", err)
		os.Exit(1)
	}

	addr := ":" + cfg.MockAPI.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"use_redis": cfg.MockAPI.UseRedis,
	})
	logg.Info(ctx, "starting mock api")

	server := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "mock api shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "mock api stopped unexpectedly", err)
		os.Exit(1)
	}
}
