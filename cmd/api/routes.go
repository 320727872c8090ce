package main

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/estatehub/backend/internal/auth"
	"github.com/estatehub/backend/internal/config"
	"github.com/estatehub/backend/internal/gateway"
	"github.com/estatehub/backend/internal/handlers"
	"github.com/estatehub/backend/internal/ledger"
	"github.com/estatehub/backend/internal/realtime"
	"github.com/estatehub/backend/internal/router"
	"github.com/estatehub/backend/internal/services"
)

// engine holds the long-running parts main has to stop on shutdown.
type engine struct {
	handler   http.Handler
	bids      *services.BidService
	scheduler *services.Scheduler
}

type paymentGateway interface {
	services.PaymentGateway
	handlers.CallbackVerifier
}

// buildEngine wires the auction services over store and returns the CORS
// wrapped /v1 API. Chain per request: CORS -> BearerAuth -> handler.
func buildEngine(cfg *config.Config, store ledger.Store, notifier services.Notifier, logger *slog.Logger) (*engine, error) {
	validator, err := services.NewValidator()
	if err != nil {
		return nil, err
	}

	gwCfg := gateway.Config{
		BaseURL:        cfg.GatewayBaseURL,
		APIKey:         cfg.GatewayAPIKey,
		CallbackSecret: cfg.GatewayCallbackSecret,
		ReturnURL:      cfg.GatewayReturnURL,
	}
	var gw paymentGateway
	if cfg.GatewayBaseURL == "" {
		logger.Warn("GATEWAY_BASE_URL not set, using sandbox payment gateway")
		gw = gateway.NewSandbox(gwCfg)
	} else {
		gw = gateway.NewHTTP(gwCfg)
	}

	hub := realtime.NewHub(logger, cfg.CORSAllowedOrigins)
	clock := services.SystemClock()

	bids := services.NewBidService(store, hub, clock, logger, services.BidConfig{
		QueueSize:   cfg.BidQueueSize,
		IdleTimeout: cfg.BidWorkerIdle,
	})
	deposits := services.NewDepositGate(store, gw, notifier, logger)
	settlement := services.NewSettlementService(store, notifier, clock, logger)
	scheduler := services.NewScheduler(store, settlement, hub, clock, logger, cfg.SchedulerInterval, cfg.SchedulerConcurrency)

	tokens := auth.NewService(cfg.JWTSecret)
	h := &handlers.AuctionHandler{
		Bids:            bids,
		Deposits:        deposits,
		Lifecycle:       scheduler,
		Ledger:          store,
		Verifier:        gw,
		SignatureHeader: gateway.SignatureHeader,
		Validator:       validator,
		Logger:          logger,
	}
	api := router.New(h, hub.ServeWS, tokens)

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", gateway.SignatureHeader},
		AllowCredentials: true,
	}).Handler(api)

	return &engine{handler: corsHandler, bids: bids, scheduler: scheduler}, nil
}
