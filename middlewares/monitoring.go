package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	cartOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Total number of cart operations",
		},
		[]string{"operation", "mode", "status"},
	)

	stockConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_stock_conflicts_total",
			Help: "Checkouts rejected for insufficient stock, by detection stage",
		},
		[]string{"stage"},
	)

	soldOutProducts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_products_sold_out_total",
			Help: "Products whose stock reached zero through an order",
		},
	)
)

// PrometheusMiddleware collects request count and latency.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordOrderOperation(operation string, success bool) {
	orderOperations.WithLabelValues(operation, outcome(success)).Inc()
}

func RecordCartOperation(operation string, anonymous, success bool) {
	mode := "authenticated"
	if anonymous {
		mode = "anonymous"
	}
	cartOperations.WithLabelValues(operation, mode, outcome(success)).Inc()
}

func RecordStockConflict(stage string) {
	stockConflicts.WithLabelValues(stage).Inc()
}

func RecordSoldOut(n int) {
	soldOutProducts.Add(float64(n))
}
