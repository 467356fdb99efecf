package main

import (
	"fmt"
	"log"
	"net/http"

	"alumnet/internal/api"
	"alumnet/internal/api/handlers"
	"alumnet/internal/api/middleware"
	"alumnet/internal/engine/blacklist"
	"alumnet/internal/engine/serial"
	"alumnet/internal/engine/tenant"
	"alumnet/internal/engine/verification"
	"alumnet/internal/pkg/logger"
	"alumnet/internal/platform/audit"
	"alumnet/internal/platform/auth"
	"alumnet/internal/platform/config"
	"alumnet/internal/platform/database"
	"alumnet/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Repositories
	orgRepo := repositories.NewOrganizationRepository(db)
	userRepo := repositories.NewUserRepository(db)
	memberRepo := verification.NewMemberRepository(db)

	// Engines
	resolver := tenant.NewResolver(orgRepo, cfg.Cache.OrgTTL)
	ledger := blacklist.NewLedger(db)
	allocator := serial.NewAllocator()
	recorder := audit.NewRecorder(db)
	verificationSvc := verification.NewService(db, memberRepo, ledger, allocator, recorder, cfg.Serial.MaxRetries)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, tokenSvc)
	orgHandler := handlers.NewOrgHandler(orgRepo, userRepo, tokenSvc)
	memberHandler := handlers.NewMemberHandler(memberRepo, ledger, resolver)
	verificationHandler := handlers.NewVerificationHandler(verificationSvc)
	blacklistHandler := handlers.NewBlacklistHandler(ledger)
	auditHandler := handlers.NewAuditHandler(recorder)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	tenantMiddleware := middleware.NewTenantMiddleware(resolver)

	// Router
	deps := &api.Dependencies{
		AuthHandler:         authHandler,
		OrgHandler:          orgHandler,
		MemberHandler:       memberHandler,
		VerificationHandler: verificationHandler,
		BlacklistHandler:    blacklistHandler,
		AuditHandler:        auditHandler,
		HealthHandler:       healthHandler,
		AuthMiddleware:      authMiddleware,
		TenantMiddleware:    tenantMiddleware,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
