package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storefront-service/middlewares"
)

type RouterDeps struct {
	Cart      *CartController
	Orders    *OrderController
	JWTSecret string
	Logger    *zap.Logger
	// Health reports dependency failures for /health; nil means healthy.
	Health func() error
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.Logger(d.Logger))
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	cartGroup := api.Group("/cart")
	cartGroup.Use(middlewares.OptionalAuth(d.JWTSecret))
	{
		cartGroup.GET("", d.Cart.GetCart)
		cartGroup.POST("", d.Cart.AddItem)
		cartGroup.PUT("", d.Cart.UpdateItem)
		cartGroup.DELETE("", d.Cart.RemoveItem)
	}
	api.PATCH("/cart", middlewares.AuthMiddleware(d.JWTSecret), d.Cart.MergeCart)

	authGroup := api.Group("")
	authGroup.Use(middlewares.AuthMiddleware(d.JWTSecret))
	{
		authGroup.POST("/orders", d.Orders.CreateOrder)
		authGroup.GET("/orders", d.Orders.GetUserOrders)
		authGroup.GET("/orders/:id", d.Orders.GetOrderDetails)
	}

	admin := api.Group("/admin")
	admin.Use(middlewares.AuthMiddleware(d.JWTSecret), middlewares.RequireRole("admin"))
	{
		admin.PUT("/orders/:id/status", d.Orders.UpdateOrderStatus)
	}

	return r
}
