package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/api"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/api/middleware"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/call"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/config"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/database"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/media"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/mediagw"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/metrics"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/prompts"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/rooms"
	sipserver "github.com/ashwinrayaprolu/web-communication-platform/internal/sip"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting callserver",
		"http_port", cfg.HTTPPort,
		"sip_port", cfg.SIPPort,
		"bridge_strategy", cfg.BridgeStrategy,
		"data_dir", cfg.DataDir,
	)
	startTime := time.Now()

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	callLogs := database.NewCallLogRepository(db)
	menus := database.NewMenuRepository(db)
	agents := database.NewAgentRepository(db)

	// Default system prompts for the media server.
	if err := prompts.ExtractToDataDir(cfg.DataDir); err != nil {
		slog.Error("failed to extract system prompts", "error", err)
		os.Exit(1)
	}

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// SIP front end. The dispatcher is bound once the engine exists.
	sipSrv, err := sipserver.NewServer(sipserver.Config{
		Host: cfg.AdvertisedSIPHost(),
		Port: cfg.SIPPort,
	}, logger)
	if err != nil {
		slog.Error("failed to create sip server", "error", err)
		os.Exit(1)
	}
	dialer := sipSrv.Dialer(cfg.SIPPeer)

	// Media negotiation through the relay, unless proxy bridging is
	// configured.
	var negotiator *media.Negotiator
	if cfg.BridgeStrategy == call.StrategyRelay {
		relay := media.NewHTTPRelay(cfg.RelayURL, cfg.NegotiationTimeout, logger)
		negotiator = media.NewNegotiator(relay, logger)
	}

	// Media server gateway for the interactive paths.
	var gateway *mediagw.Gateway
	if cfg.ESLAddr != "" {
		gateway = mediagw.NewGateway(mediagw.Config{
			Addr:     cfg.ESLAddr,
			Password: cfg.ESLPassword,
			ParkDest: cfg.ParkDest,
		}, dialer, logger)
		if err := gateway.Connect(); err != nil {
			slog.Error("failed to connect media gateway", "addr", cfg.ESLAddr, "error", err)
			os.Exit(1)
		}
		defer gateway.Close()
	} else {
		slog.Warn("no event socket configured, interactive call paths disabled")
	}

	registry := call.NewRegistry(logger)
	orchestrator := newOrchestrator(cfg, registry, negotiator, dialer, gateway, callLogs, logger)

	// IVR dialog engine with spoken prompts.
	speaker := newSpeaker(appCtx, cfg, logger)
	ivr := call.NewIVREngine(menus, speaker, orchestrator.Transfer, call.IVRConfig{
		EntryMenu:   cfg.IVREntryMenu,
		MaxInvalid:  cfg.IVRMaxInvalid,
		StrictMenus: cfg.IVRStrictMenus,
	}, logger)

	// WebRTC room path, when a LiveKit deployment is configured.
	roomService := newRoomService(appCtx, cfg, logger)

	handlers := call.NewHandlers(orchestrator, ivr, roomService, logger)
	router := call.NewRouter(handlers.Routes(cfg.RouteDirect, cfg.RouteIVR, cfg.RouteWebRTCPrefix), logger)
	sipSrv.SetDispatcher(router)

	if err := sipSrv.Start(appCtx); err != nil {
		slog.Error("failed to start sip server", "error", err)
		os.Exit(1)
	}

	// Admin HTTP server with the Prometheus scrape endpoint.
	var relayProvider metrics.RelayProvider
	if negotiator != nil {
		relayProvider = negotiator
	}
	collector := metrics.NewCollector(registry, callLogs, relayProvider, agents, startTime)

	handler := api.NewServer(callLogs, menus, agents, registry, orchestrator,
		metrics.Handler(collector),
		api.Config{CORSOrigins: middleware.ParseCORSOrigins(cfg.CORSOrigins)},
		logger,
	)
	defer handler.Close()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down servers")
	sipSrv.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("callserver stopped")
}

// newOrchestrator assembles the bridge orchestrator. The gateway is
// passed through an untyped nil check so an unconfigured media server
// stays a nil interface inside the orchestrator.
func newOrchestrator(
	cfg *config.Config,
	registry *call.Registry,
	negotiator *media.Negotiator,
	dialer *sipserver.Dialer,
	gateway *mediagw.Gateway,
	callLogs database.CallLogRepository,
	logger *slog.Logger,
) *call.Orchestrator {
	ocfg := call.OrchestratorConfig{
		Strategy:           cfg.BridgeStrategy,
		DialTimeout:        cfg.DialTimeout,
		NegotiationTimeout: cfg.NegotiationTimeout,
	}

	var neg call.Negotiator
	if negotiator != nil {
		neg = negotiator
	}
	if gateway == nil {
		return call.NewOrchestrator(registry, neg, dialer, nil, callLogs, ocfg, logger)
	}
	return call.NewOrchestrator(registry, neg, dialer, gateway, callLogs, ocfg, logger)
}

// newSpeaker builds the prompt speaker. Without a synthesis service the
// speaker degrades to the configured fallback recording for every
// prompt.
func newSpeaker(ctx context.Context, cfg *config.Config, logger *slog.Logger) *tts.Speaker {
	client := tts.NewClient(cfg.TTSURL, cfg.TTSVoice, cfg.TTSSpeed, 10*time.Second, logger)
	if cfg.TTSURL != "" {
		client.Probe(ctx)
	}

	fallback := cfg.TTSFallback
	if fallback == "" {
		fallback = prompts.FallbackPath(cfg.DataDir)
	}
	return tts.NewSpeaker(client, fallback, logger)
}

// newRoomService builds the WebRTC room provisioner, or nil when
// LiveKit is not configured.
func newRoomService(ctx context.Context, cfg *config.Config, logger *slog.Logger) call.RoomProvisioner {
	if cfg.LiveKitHost == "" {
		slog.Info("livekit not configured, webrtc room path disabled")
		return nil
	}

	roomClient := lksdk.NewRoomServiceClient(cfg.LiveKitHost, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)

	var kv rooms.KV
	if cfg.RedisAddr != "" {
		store := rooms.NewRedisStore(cfg.RedisAddr)
		if err := store.Ping(ctx); err != nil {
			slog.Error("redis unreachable, room join info will not be published",
				"addr", cfg.RedisAddr, "error", err)
		} else {
			kv = store
		}
	}

	return rooms.NewService(roomClient, kv, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, logger)
}
