// Package httpapi exposes the loyalty service over HTTP behind TAuth sessions.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const claimsContextKey = "auth_claims"

// Dependencies are the collaborators the HTTP API is built from.
type Dependencies struct {
	Service   *loyalty.Service
	Validator *sessionvalidator.Validator
	Logger    *zap.Logger
	Clock     func() int64
}

// Serve runs the HTTP API until ctx is cancelled.
func Serve(ctx context.Context, cfg Config, dependencies Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router, err := NewRouter(cfg, dependencies)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("loyalty api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine with every loyalty route registered.
func NewRouter(cfg Config, dependencies Dependencies) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dependencies.Service == nil {
		return nil, errors.New("loyalty service is required")
	}
	if dependencies.Validator == nil {
		return nil, errors.New("session validator is required")
	}
	handler := &httpHandler{
		service: dependencies.Service,
		logger:  dependencies.Logger,
		cfg:     cfg,
		nowFn:   dependencies.Clock,
	}
	if handler.logger == nil {
		handler.logger = zap.NewNop()
	}
	if handler.nowFn == nil {
		handler.nowFn = func() int64 { return time.Now().UTC().Unix() }
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(dependencies.Validator.GinMiddleware(claimsContextKey))
	api.Use(handler.requireMember)

	api.POST("/account", handler.handleRegister)
	api.GET("/account", handler.handleAccount)
	api.GET("/entries", handler.handleEntries)
	api.GET("/rewards", handler.handleRewards)
	api.POST("/codes/redeem", handler.handleRedeemCode)
	api.POST("/checkins", handler.handleCheckIn)
	api.POST("/rewards/:rewardID/redeem", handler.handleRedeemReward)
	api.GET("/redemptions/active", handler.handleActiveRedemptions)
	api.POST("/redemptions/:redemptionID/use", handler.requireRole(cfg.StaffRole, cfg.AdminRole), handler.handleUseRedemption)

	admin := api.Group("/admin")
	admin.Use(handler.requireRole(cfg.AdminRole))
	admin.POST("/codes", handler.handleGenerateCodes)
	admin.POST("/adjustments", handler.handleAdjustPoints)

	return router, nil
}
