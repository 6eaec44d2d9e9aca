package orchestrator

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wealthops/wealthops-backend/internal/observability"
)

type RouterConfig struct {
	Handler     *Handler
	Metrics     *observability.Metrics
	CORSOrigins []string
	ServiceName string
	EnableOtel  bool
	ReleaseMode bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.EnableOtel {
		serviceName := cfg.ServiceName
		if serviceName == "" {
			serviceName = "wealthops-orchestrator"
		}
		router.Use(otelgin.Middleware(serviceName))
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	if cfg.Metrics != nil {
		router.Use(metricsMiddleware(cfg.Metrics))
		router.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	router.GET("/health", cfg.Handler.Health)
	router.POST("/copilot/query", cfg.Handler.QuerySync)
	router.POST("/copilot/query/stream", cfg.Handler.QueryStream)

	return router
}

func metricsMiddleware(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.APIInflightInc()
		c.Next()
		m.APIInflightDec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
