package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"recite/internal/util"
	"recite/services/hello/internal/server"
)

func main() {
	logger := util.InitLogger("hello", os.Getenv("LOG_LEVEL"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}
	addr := ":" + port
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	slog.Info("hello server listening", "addr", addr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := util.ServeUntilDone(ctx, srv, 5*time.Second); err != nil {
		logger.Error("server error", "err", err)
		stop()
		os.Exit(1)
	}
}
