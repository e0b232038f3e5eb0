package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/auth"
	"github.com/arnavshah/volunteer-portal-go/pkg/catalog"
	"github.com/arnavshah/volunteer-portal-go/pkg/certificates"
	"github.com/arnavshah/volunteer-portal-go/pkg/dashboard"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/identity"
	"github.com/arnavshah/volunteer-portal-go/pkg/leaderboard"
	"github.com/arnavshah/volunteer-portal-go/pkg/proofs"
	"github.com/arnavshah/volunteer-portal-go/pkg/registration"
)

const accountKey = "account"

// Version is reported by the index route
var Version = "1.0.0"

// Handler contains dependencies for the route handlers
type Handler struct {
	Directory      *identity.Directory
	Tokens         *auth.TokenIssuer
	Catalog        *catalog.Catalog
	Ledger         *registration.Ledger
	Proofs         *proofs.Engine
	Certificates   *certificates.Service
	Leaderboard    *leaderboard.Aggregator
	Dashboard      *dashboard.Service
	Logger         *zap.Logger
	MaxUploadBytes int64
}

// Routes registers every endpoint on r
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Volunteer Portal API",
			"version": Version,
		})
	})
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}

	events := api.Group("/events")
	{
		events.GET("", h.ListEvents)
		events.GET("/categories", h.ListCategories)
		events.GET("/category/:category", h.ListEventsByCategory)
		events.GET("/registered", h.AuthMiddleware(), h.RequireRole(database.RoleVolunteer), h.RegisteredEvents)
		events.POST("/register/:eventId", h.AuthMiddleware(), h.RequireRole(database.RoleVolunteer), h.RegisterForEvent)
		events.DELETE("/unregister/:eventId", h.AuthMiddleware(), h.RequireRole(database.RoleVolunteer), h.UnregisterFromEvent)
		events.GET("/:id", h.GetEvent)
	}

	volunteer := api.Group("")
	volunteer.Use(h.AuthMiddleware(), h.RequireRole(database.RoleVolunteer))
	{
		volunteer.GET("/proof/user", h.MyProofs)
		volunteer.POST("/proof/upload/:eventId", h.UploadProof)
		volunteer.DELETE("/proof/:proofId", h.DeleteProof)
		volunteer.GET("/user/dashboard", h.VolunteerDashboard)
	}

	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware(), h.RequireRole(database.RoleCoordinator))
	{
		admin.GET("/dashboard", h.CoordinatorDashboard)
		admin.GET("/events", h.MyEvents)
		admin.POST("/events", h.CreateEvent)
		admin.PUT("/events/:id", h.UpdateEvent)
		admin.DELETE("/events/:id", h.DeleteEvent)
		admin.GET("/proofs", h.ReviewQueue)
		admin.PUT("/proofs/:proofId/approve", h.ApproveProof)
		admin.PUT("/proofs/:proofId/reject", h.RejectProof)
		admin.PUT("/proofs/:proofId/regenerate-certificate", h.RegenerateCertificate)
		admin.GET("/users", h.ListVolunteers)
	}

	api.GET("/leaderboard", h.GetLeaderboard)
	api.POST("/leaderboard/recalculate", h.AuthMiddleware(), h.RequireRole(database.RoleCoordinator), h.RecalculatePoints)

	certs := api.Group("/certificates")
	{
		certs.GET("/verify/:code", h.VerifyCertificate)
		certs.GET("/download/:certificateId", h.AuthMiddleware(), h.DownloadCertificate)
	}
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// AuthMiddleware verifies the bearer token and resolves it to an account
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := h.Tokens.VerifyToken(auth.BearerToken(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		account, err := h.Directory.Resolve(c.Request.Context(), identity.Principal{
			Role:  database.Role(claims.Role),
			Email: claims.Email,
		})
		if err != nil {
			h.Logger.Debug("token principal not resolved", zap.String("email", claims.Email), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(accountKey, account)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the resolved account has role
func (h *Handler) RequireRole(role database.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := currentAccount(c)
		if account == nil || account.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		c.Next()
	}
}

// RequestLogger logs each request through zap
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

func currentAccount(c *gin.Context) *identity.Account {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	account, _ := v.(*identity.Account)
	return account
}

// fail writes err as a JSON error with the status matching its kind
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(apperr.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.PreconditionFailed:
		return http.StatusPreconditionFailed
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.RenderError, apperr.StorageError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// idParam parses a positive integer path parameter
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
