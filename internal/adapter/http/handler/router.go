package handler

import (
	"units-ledger/internal/adapter/http/middleware"
	"units-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletStore
	TransferSvc    ports.TransferService
	TrustSvc       ports.TrustEngine
	AnalyticsSvc   ports.Analytics
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// API v1 routes
	v1 := r.Group("/api/v1")

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.TransferSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.GET("/:userID", walletHandler.GetWallet)
		wallets.GET("/:userID/transactions", walletHandler.GetHistory)
	}

	transferHandler := NewTransferHandler(deps.TransferSvc)
	v1.POST("/transfers", transferHandler.CreateTransfer)

	trustHandler := NewTrustHandler(deps.TrustSvc)
	v1.POST("/ratings", trustHandler.SubmitRating)
	v1.GET("/trust/:userID", trustHandler.GetSummary)

	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsSvc)
	analytics := v1.Group("/analytics")
	{
		analytics.GET("/system", analyticsHandler.GetSystemMetrics)
		analytics.GET("/users/:userID/reciprocity", analyticsHandler.GetReciprocity)
	}

	return r
}
