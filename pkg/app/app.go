package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/auth"
	"github.com/arnavshah/volunteer-portal-go/pkg/catalog"
	"github.com/arnavshah/volunteer-portal-go/pkg/certificates"
	"github.com/arnavshah/volunteer-portal-go/pkg/config"
	"github.com/arnavshah/volunteer-portal-go/pkg/dashboard"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/handlers"
	"github.com/arnavshah/volunteer-portal-go/pkg/identity"
	"github.com/arnavshah/volunteer-portal-go/pkg/leaderboard"
	"github.com/arnavshah/volunteer-portal-go/pkg/proofs"
	"github.com/arnavshah/volunteer-portal-go/pkg/registration"
	"github.com/arnavshah/volunteer-portal-go/pkg/storage"
)

// App holds the wired services shared by the HTTP server, the serverless entry point and the CLI
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Logger       *zap.Logger
	Directory    *identity.Directory
	Catalog      *catalog.Catalog
	Ledger       *registration.Ledger
	Proofs       *proofs.Engine
	Certificates *certificates.Service
	Leaderboard  *leaderboard.Aggregator
	Dashboard    *dashboard.Service
	Handler      *handlers.Handler

	queue  *certificates.Queue
	ownsDB bool
}

// New opens the database, migrates it and wires every service
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}

	a, err := NewWithDB(ctx, cfg, db, logger)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	a.ownsDB = true
	return a, nil
}

// NewWithDB wires services over an already migrated database
func NewWithDB(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	renderer := certificates.NewDocumentRenderer(store, cfg.Auth.VerificationSecret, cfg.App.BaseURL)
	certs := certificates.NewService(db, renderer, store, logger.Named("certificates"))
	engine := proofs.NewEngine(db, store, certs, logger.Named("proofs"))

	a := &App{
		Config:       cfg,
		DB:           db,
		Logger:       logger,
		Directory:    identity.NewDirectory(db, logger.Named("identity")),
		Catalog:      catalog.New(db, logger.Named("catalog")),
		Ledger:       registration.New(db, logger.Named("registration"), registration.WithCapacityEnforcement(cfg.App.EnforceCapacity)),
		Proofs:       engine,
		Certificates: certs,
		Leaderboard:  leaderboard.New(db, logger.Named("leaderboard"), 200),
		Dashboard:    dashboard.New(db),
	}

	if cfg.App.CertWorkers > 0 {
		a.queue = certificates.NewQueue(certificates.IssuerFunc(engine.IssueCertificate), cfg.App.CertWorkers, 256, logger.Named("certificate-queue"))
		engine.UseQueue(a.queue)
	}

	a.Handler = &handlers.Handler{
		Directory:      a.Directory,
		Tokens:         auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Catalog:        a.Catalog,
		Ledger:         a.Ledger,
		Proofs:         a.Proofs,
		Certificates:   a.Certificates,
		Leaderboard:    a.Leaderboard,
		Dashboard:      a.Dashboard,
		Logger:         logger.Named("http"),
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	}

	if err := a.Directory.EnsureCoordinator(ctx,
		cfg.Auth.AdminName, cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword,
	); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to seed coordinator: %w", err)
	}

	return a, nil
}

// Router builds the gin engine with every route registered
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(a.Logger.Named("http")))
	r.MaxMultipartMemory = a.Config.Server.MaxUploadMB << 20
	a.Handler.Routes(r)
	return r
}

// Close drains the certificate queue and, if owned, closes the database
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Close()
		a.queue = nil
	}
	if a.ownsDB {
		if err := database.Close(a.DB); err != nil {
			a.Logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
