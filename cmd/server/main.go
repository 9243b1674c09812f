package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"emailtracker/internal/auth"
	"emailtracker/internal/bootstrap"
	"emailtracker/internal/config"
	"emailtracker/internal/handler"
	"emailtracker/internal/httpserver"
	"emailtracker/internal/messaging"
	"emailtracker/internal/mqhandler"
	"emailtracker/internal/service/tracker"
	"emailtracker/internal/store"
	"emailtracker/pkg/logger"
	"emailtracker/pkg/mq"
	"emailtracker/pkg/otel"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	// 2. Init tracing
	shutdownOtel, err := otel.Init(cfg.Otel, "email-tracker-server", log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownOtel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Init MQ publisher (optional: no url means no events)
	var publisher *mq.Publisher
	var storeOpts []store.Option
	var trackerOpts []tracker.Option
	if cfg.MQ.URL != "" {
		publisher, err = mq.NewPublisher(cfg.MQ, log)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		storeOpts = append(storeOpts, store.WithRepairRequester(mqhandler.NewRepairRequester(publisher)))
		trackerOpts = append(trackerOpts, tracker.WithPublisher(publisher))
	} else {
		log.Warn("MQ url not set: events disabled, backup repairs only logged")
	}

	// 4. Init storage
	storage, err := bootstrap.OpenStorage(ctx, cfg, log, storeOpts...)
	if err != nil {
		log.Fatal("Storage initialization failed", zap.Error(err))
	}
	defer storage.Close()

	// 5. Init services
	trackerService := tracker.NewService(storage.Store, log, trackerOpts...)

	jwtSecret := cfg.JWT.Secret
	if jwtSecret == "" {
		jwtSecret = randomSecret()
		log.Warn("JWT secret not set: using a random secret, sessions end on restart")
	}
	sessions := auth.NewService(cfg.Auth.ClientKeyHash, cfg.Auth.AdminKeyHash, jwtSecret, cfg.JWT.TokenTTL)
	if cfg.Auth.ClientKeyHash == "" && cfg.Auth.AdminKeyHash == "" {
		log.Warn("No client key hashes configured: every session gets the admin role")
	}

	dispatcher := messaging.NewTrackerDispatcher(trackerService, messaging.NewLogPopupOpener(log), log)

	// 6. Init handlers and router
	var broker httpserver.BrokerStatus
	if publisher != nil {
		broker = publisher
	}
	router := httpserver.NewRouter(
		handler.NewSessionHandler(sessions, log),
		handler.NewMessageHandler(dispatcher, cfg.API.AllowedOrigins, log),
		handler.NewRecordHandler(trackerService, log),
		sessions,
		trackerService,
		broker,
	)

	// 7. Run server
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting email tracker server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
