package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"recite/internal/ratelimit"
	"recite/internal/usertoken"
	"recite/internal/util"
	"recite/services/recite/internal/app"
	"recite/services/recite/internal/config"
	"recite/services/recite/internal/server"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger("recite", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	location, err := cfg.Location()
	if err != nil {
		log.Fatalf("failed to load timezone: %v", err)
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var tokenVerifier server.TokenVerifier
	if cfg.IdentityMode == config.IdentityModeJWT {
		leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
		if err != nil {
			log.Fatalf("failed to parse jwt leeway: %v", err)
		}
		verifier, err := usertoken.NewVerifier(ctx, usertoken.Config{
			JWKSURL:    cfg.AuthJWKSURL,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			Leeway:     leeway,
			HTTPClient: &http.Client{Timeout: 5 * time.Second},
		})
		if err != nil {
			log.Fatalf("failed to init jwks verifier: %v", err)
		}
		tokenVerifier = verifier
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Info("redis not configured, rate limiting disabled")
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:             cfg.DatabaseURL,
		Location:                location,
		ImportMaxParagraphRunes: cfg.ImportMaxParagraphRunes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	if cfg.AdminToken == "" {
		logger.Warn("adminToken not set, /api/admin/import is open to anyone")
	}
	httpServer, err := server.New(server.Config{
		App:                      appCore,
		IdentityMode:             cfg.IdentityMode,
		TokenVerifier:            tokenVerifier,
		AdminToken:               cfg.AdminToken,
		Redis:                    redisClient,
		ReportRateLimitPerMinute: cfg.ReportRateLimitPerMinute,
		PingRateLimitPerMinute:   cfg.PingRateLimitPerMinute,
		ImportRateLimitPerMinute: cfg.ImportRateLimitPerMinute,
		TrustedProxies:           trustedProxies,
		MaxImportBytes:           cfg.MaxImportBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("recite server listening", "addr", addr, "identity_mode", cfg.IdentityMode)
	if err := util.ServeUntilDone(ctx, srv, shutdownGrace); err != nil {
		logger.Error("server error", "err", err)
		return
	}
	logger.Info("recite server stopped")
}
