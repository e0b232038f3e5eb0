package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arnavshah/volunteer-portal-go/pkg/app"
	"github.com/arnavshah/volunteer-portal-go/pkg/config"
	"github.com/arnavshah/volunteer-portal-go/pkg/logging"
)

var (
	r       http.Handler
	initErr error
)

func init() {
	// Load .env if it exists (for local testing with vercel dev)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		initErr = err
		log.Printf("config error: %v", err)
		return
	}
	// Functions may be frozen between invocations, so certificates are issued inline
	cfg.App.CertWorkers = 0

	logger, err := logging.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		initErr = err
		log.Printf("logger error: %v", err)
		return
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		initErr = err
		logger.Error("failed to initialize application", zap.Error(err))
		return
	}
	r = a.Router()
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	if initErr != nil {
		http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	r.ServeHTTP(w, req)
}
