// Package server exposes the automation core over HTTP: resource ingestion,
// the live event stream, action execution, orchestrator control and the
// JSON-RPC protocol endpoint.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argus-vision/argus/config"
	actionclients "github.com/argus-vision/argus/internal/actions"
	"github.com/argus-vision/argus/internal/archive"
	"github.com/argus-vision/argus/internal/mcp"
	"github.com/argus-vision/argus/internal/mirror"
	"github.com/argus-vision/argus/internal/orchestrator"
	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/internal/search"
	"github.com/argus-vision/argus/internal/telemetry"
	"github.com/argus-vision/argus/internal/tools"
	"github.com/argus-vision/argus/provider"
)

// Server bundles the wired dependencies behind the HTTP handlers.
type Server struct {
	cfg         *config.Config
	store       *resource.Store
	registry    *tools.Registry
	broadcaster *Broadcaster
	protocol    *mcp.Server
	orch        *orchestrator.Orchestrator
	executor    *tools.ActionExecutor
	mirror      *mirror.IntegrationMirror
	metrics     *telemetry.Metrics
	logger      *log.Logger
}

// Run wires the whole system from configuration and serves until the listener
// fails. Postgres and Redis are optional; everything else is in-process.
func Run(cfg *config.Config) error {
	ctx := context.Background()
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	store := resource.New(cfg.Retention.MaxPerKind)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Optional detection archive: evicted detections survive in Postgres.
	if dsn := cfg.Storage.Postgres.DSN(); dsn != "" {
		if err := archive.Migrate("file://migrations", dsn, "up", 0); err != nil {
			return fmt.Errorf("migrate archive schema: %w", err)
		}
		arc, err := archive.Open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("open detection archive: %w", err)
		}
		store.OnEvict(arc.EvictionHook())
		logger.Printf("detection archive enabled")
	}

	var llm provider.Provider
	if cfg.LLM.APIKey != "" {
		p, err := provider.NewProvider(cfg.LLM)
		if err != nil {
			return fmt.Errorf("init model provider: %w", err)
		}
		llm = p
	} else {
		logger.Printf("no model api key configured; orchestration and action extraction disabled")
	}

	caller := actionclients.NewTelephonyClient(cfg.Actions.Telephony)
	emailer := actionclients.NewEmailClient(cfg.Actions.Email)
	texter := actionclients.NewMessagingClient(cfg.Actions.Messaging)
	webhook := actionclients.NewWebhookClient(cfg.Actions.Webhook)

	transcripts, err := search.NewTranscriptIndex()
	if err != nil {
		return fmt.Errorf("init transcript index: %w", err)
	}
	transcripts.Attach(store)

	registry := tools.NewRegistry(metrics)
	tools.RegisterBuiltin(registry, tools.Deps{
		Store:       store,
		Caller:      caller,
		Emailer:     emailer,
		Texter:      texter,
		Webhook:     webhook,
		Transcripts: transcripts,
	})

	var mir *mirror.IntegrationMirror
	if addr := cfg.Storage.Redis.Addr(); addr != "" {
		m, err := mirror.New(ctx, addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect integration mirror: %w", err)
		}
		m.Attach(store)
		mir = m
		logger.Printf("integration mirror enabled")
	}

	broadcaster := NewBroadcaster(store, cfg.Server.HeartbeatInterval, metrics)
	protocol := mcp.NewServer(cfg.Server.Name, cfg.Server.Version, store, registry)
	orch := orchestrator.New(store, registry, llm, cfg.Orchestrator.PassTimeout, metrics)
	executor := tools.NewActionExecutor(llm, caller, emailer, texter)

	s := &Server{
		cfg:         cfg,
		store:       store,
		registry:    registry,
		broadcaster: broadcaster,
		protocol:    protocol,
		orch:        orch,
		executor:    executor,
		mirror:      mir,
		metrics:     metrics,
		logger:      logger,
	}
	return s.serve()
}

func (s *Server) serve() error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if s.cfg.Telemetry.Enabled {
		path := s.cfg.Telemetry.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(promhttp.Handler()))
	}

	e.POST("/mcp", s.handleProtocol)
	e.GET("/mcp", s.handleProtocolIdentity)

	api := e.Group("/api")
	api.GET("/events", s.handleEvents)
	api.POST("/ingest", s.handleIngest)
	api.POST("/actions", s.handleAction)
	api.GET("/integrations", s.handleListIntegrations)
	api.POST("/integrations", s.handleIntegrations)
	api.POST("/orchestrator", s.handleOrchestrator)
	api.GET("/orchestrator/status", s.handleOrchestratorStatus)

	s.logger.Printf("listening on %s", s.cfg.Server.Address)
	return e.Start(s.cfg.Server.Address)
}
