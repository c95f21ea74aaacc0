package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"staybook/internal/infra/config"
	"staybook/internal/infra/obs"
)

type TravelerBookingHTTP interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Cancel(c *gin.Context)
}

type OwnerBookingHTTP interface {
	List(c *gin.Context)
	Approve(c *gin.Context)
	Reject(c *gin.Context)
	Cancel(c *gin.Context)
}

type Handlers struct {
	Traveler TravelerBookingHTTP
	Owner    OwnerBookingHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-User-ID", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Traveler != nil {
		api.POST("/bookings", h.Traveler.Create)
		api.GET("/bookings", h.Traveler.List)
		api.POST("/bookings/:id/cancel", h.Traveler.Cancel)
	}
	if h.Owner != nil {
		ownerGroup := api.Group("/owner/bookings")
		ownerGroup.GET("", h.Owner.List)
		ownerGroup.POST("/:id/approve", h.Owner.Approve)
		ownerGroup.POST("/:id/reject", h.Owner.Reject)
		ownerGroup.POST("/:id/cancel", h.Owner.Cancel)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
