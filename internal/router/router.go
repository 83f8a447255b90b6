package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hireflowhq/delivery-api/internal/handler"
	"github.com/hireflowhq/delivery-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine    *gin.Engine
	webhookH  Handler
	deliveryH Handler
	healthH   *handler.HealthHandler
	config    RouterConfig
	metrics   *routerMetrics
}

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CORSConfig     middleware.CORSConfig
	WebhookToken   string
	MetricsPrefix  string
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func NewRouter(
	webhookH Handler,
	deliveryH Handler,
	healthH *handler.HealthHandler,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:    engine,
		webhookH:  webhookH,
		deliveryH: deliveryH,
		healthH:   healthH,
		config:    config,
		metrics:   initRouterMetrics(config.MetricsPrefix),
	}

	engine.Use(
		gin.Recovery(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.RequestID(),
		middleware.CORS(config.CORSConfig),
	)

	return r
}

func (r *Router) Setup() {
	health := r.engine.Group("/health")
	{
		health.GET("/live", r.healthH.Live)
		health.GET("/ready", r.healthH.Ready)
	}
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider-facing ingestion. No rate limiting here: throttling
	// webhook calls only amplifies the provider's retry traffic.
	webhooks := r.engine.Group("/webhooks")
	webhooks.Use(middleware.WebhookToken(r.config.WebhookToken))
	r.webhookH.RegisterRoutes(webhooks)

	// Viewer-facing read API.
	api := r.engine.Group("/api/v1")
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RPS:   r.config.RateLimitRPS,
		Burst: r.config.RateLimitBurst,
	})
	api.Use(rateLimiter.RateLimit())
	r.deliveryH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func initRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		status := fmt.Sprintf("%d", c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
