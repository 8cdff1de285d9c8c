// Package server contains the HTTP handlers for the club entitlement API.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"atrium/internal/cache"
	"atrium/internal/config"
	"atrium/internal/database"
	"atrium/internal/featureflags"
	"atrium/internal/ledger"
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/observability"
	"atrium/internal/repository"
	"atrium/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	featureFlags   *featureflags.Manager
	tracerShutdown func(context.Context) error

	clubRepo       repository.ClubRepository
	tierRepo       repository.TierRepository
	membershipRepo repository.MembershipRepository
	accessRepo     repository.EntityAccessRepository
	resourceRepo   repository.ResourceRepository

	permissions  *service.PermissionService
	clubService  *service.ClubService
	tierService  *service.TierService
	entitlements *service.EntitlementService
	projections  *service.ProjectionService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.ConnectReadReplica(cfg); err != nil {
		// Reads fall back to the primary when the replica is unavailable.
		log.Printf("read replica unavailable: %v", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	ledgerClient := ledger.NewClient(cfg.LedgerURL, cfg.LedgerAPIKey)

	tracerShutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "atrium-api",
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing initialization failed: %w", err)
	}

	srv := NewServerWithDeps(cfg, db, redisClient, ledgerClient)
	srv.tracerShutdown = tracerShutdown
	return srv, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis first.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, ledgerService ledger.Service) *Server {
	clubRepo := repository.NewClubRepository(db)
	tierRepo := repository.NewTierRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	accessRepo := repository.NewEntityAccessRepository(db)
	resourceRepo := repository.NewResourceRepository(db)

	middleware.InitMiddleware(cfg)
	prom := middleware.InitMetrics("atrium-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		clubRepo:       clubRepo,
		tierRepo:       tierRepo,
		membershipRepo: membershipRepo,
		accessRepo:     accessRepo,
		resourceRepo:   resourceRepo,
	}
	server.permissions = service.NewPermissionService(clubRepo)
	server.clubService = service.NewClubService(db, clubRepo, tierRepo, membershipRepo, accessRepo, resourceRepo, server.permissions, ledgerService)
	server.tierService = service.NewTierService(db, tierRepo, clubRepo, membershipRepo, accessRepo, resourceRepo, server.permissions)
	server.entitlements = service.NewEntitlementService(db, accessRepo, tierRepo, resourceRepo, clubRepo, server.permissions)
	server.projections = service.NewProjectionService(accessRepo, clubRepo, tierRepo, resourceRepo)

	return server
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// OpenTelemetry spans per request
	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter) so
	// browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they are handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Atrium Metrics Dashboard",
	}))

	// Public club browse routes
	clubs := api.Group("/clubs")
	clubs.Get("/", s.GetClubs)
	// Specific /:id/:resource routes BEFORE generic /:slug route
	clubs.Get("/:id/tiers", s.GetClubTiers)
	clubs.Get("/:slug", s.GetClubBySlug)

	// Public gating read model
	resources := api.Group("/resources")
	resources.Post("/gating", s.BatchGatingDetails)
	resources.Get("/:type/:id/gating", s.GetGatingDetails)

	// Protected routes
	protected := api.Group("", middleware.AuthRequired)

	protected.Get("/flags", s.GetFeatureFlags)

	protectedClubs := protected.Group("/clubs")
	protectedClubs.Post("/", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "create_club"), s.CreateClub)
	protectedClubs.Put("/:id/tiers", s.ReplaceClubTiers)
	protectedClubs.Post("/:id/join", s.JoinClub)
	protectedClubs.Post("/:id/leave", s.LeaveClub)
	protectedClubs.Get("/:id/members", s.GetClubMembers)
	protectedClubs.Get("/:id/admins", s.GetClubAdmins)
	protectedClubs.Put("/:id/admins/:userId", s.SetClubAdmin)
	protectedClubs.Delete("/:id/admins/:userId", s.RemoveClubAdmin)
	protectedClubs.Put("/:id", s.UpdateClub)
	protectedClubs.Delete("/:id", s.DeleteClub)

	protectedResources := protected.Group("/resources")
	protectedResources.Get("/:type/:id/access", s.CheckResourceAccess)
	protectedResources.Post("/:type/:id/grants", s.SetResourceGrants)
	protectedResources.Put("/:type/:id/grants/clubs/:clubId", s.UpdateClubGrant)
	protectedResources.Delete("/:type/:id/grants/clubs/:clubId", s.RevokeClubGrant)
	protectedResources.Post("/:type/:id/grants/users/:userId", s.GrantUserAccess)
	protectedResources.Delete("/:type/:id/grants/users/:userId", s.RevokeUserAccess)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "Atrium API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	if s.tracerShutdown != nil {
		if terr := s.tracerShutdown(ctx); terr != nil {
			log.Printf("error shutting down tracer: %v", terr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
