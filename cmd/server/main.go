// Command server runs the Atlas realtime gateway: a WebSocket fan-out hub
// with a REST API for accounts and history, backed by SQLite.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Jacksonmlol/Atlas-pullrequest/internal/auth"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/notify"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/server"
	"github.com/Jacksonmlol/Atlas-pullrequest/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	announce := flag.String("notify", "", "post a one-off webhook announcement and exit")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	webhook := notify.NewWebhook(cfg.WebhookURL, log)
	if *announce != "" {
		webhook.Announce(*announce)
		return
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.TokenSecret,
		TokenTTL: cfg.TokenTTL,
	})
	if err != nil {
		log.Fatal("failed to initialize token verifier", zap.Error(err))
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to open store", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	gateway := server.NewGateway(cfg, st, verifier, webhook, log)
	httpServer := server.NewHTTPServer(cfg.Port, gateway.Routes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, log)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, log); err != nil {
		log.Error("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := gateway.Hub().Shutdown(shutdownTimeout); err != nil {
		log.Error("hub shutdown incomplete", zap.Error(err))
	}
	log.Info("gateway stopped")
}
