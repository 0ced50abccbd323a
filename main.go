package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/shivamani-yamana/checkbro/config"
	"github.com/shivamani-yamana/checkbro/game"
	"github.com/shivamani-yamana/checkbro/logging"
	"github.com/shivamani-yamana/checkbro/metrics"
	"github.com/shivamani-yamana/checkbro/relay"
	"github.com/shivamani-yamana/checkbro/token"
	"github.com/shivamani-yamana/checkbro/websocket"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local development convenience; the file is optional.
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if err := config.Initialize(env); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize config")
	}
	cfg := config.Get()

	logging.Init(cfg.Log)
	log.Info().Str("environment", env).Msg("starting checkbro server")

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	window := time.Duration(cfg.Game.ReconnectionWindow) * time.Second
	signer := token.NewSigner(cfg.Auth.TokenSecret, window)

	coord := relay.New(relay.Config{
		PingInterval:       time.Duration(cfg.WebSocket.PingInterval) * time.Second,
		StalenessTimeout:   time.Duration(cfg.WebSocket.StalenessTimeout) * time.Second,
		ReconnectionWindow: window,
		GrantRateLimit:     time.Duration(cfg.Game.GrantRateLimit) * time.Second,
	}, game.NewChessValidator(), signer)
	go coord.Run(ctx)

	handler := websocket.NewHandler(coord, cfg.WebSocket, cfg.Server.AllowedOrigins)

	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Server.Port),
		Handler:     mux,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// WriteTimeout is left unset: it would sever long-lived websocket
		// connections after the deadline.
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("websocket server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	cancel()
	log.Info().Msg("server stopped")
}
