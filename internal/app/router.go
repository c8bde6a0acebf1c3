package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"carrental/internal/handler"
	"carrental/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RentalHandler  *handler.RentalHandler
	PaymentHandler *handler.PaymentHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.RentalAttributes())
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		vehicles := v1.Group("/vehicles")
		{
			vehicles.GET("/:id", deps.RentalHandler.GetVehicle)
			vehicles.POST("/:id/rentals", deps.RentalHandler.CreateReservation)
			vehicles.POST("/:id/payments", deps.PaymentHandler.InitializePayment)
		}

		rentals := v1.Group("/rentals")
		{
			rentals.GET("/:id", deps.RentalHandler.GetRental)
			rentals.GET("/:id/consistency", deps.RentalHandler.CheckConsistency)
			rentals.POST("/:id/repair", deps.RentalHandler.Repair)
		}

		v1.GET("/payments/verify", deps.PaymentHandler.VerifyPayment)
	}

	// Gateway-facing routes keep the paths registered with the provider.
	payment := router.Group("/payment")
	{
		payment.GET("/callback", deps.PaymentHandler.Callback)
		payment.POST("/webhook", deps.PaymentHandler.Webhook)
	}

	return router
}
