package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/y001j/pizzeria-alerts/internal/metrics"
	"github.com/y001j/pizzeria-alerts/internal/web/middleware"
	"github.com/y001j/pizzeria-alerts/internal/web/utils"
)

// RouteDeps are the collaborators the routes need.
type RouteDeps struct {
	AppName     string
	Engine      AlertEngine
	History     AlertHistory
	Credentials Credentials
	JWT         *utils.JWTConfig
	Login       LoginObserver
	// Streams are mounted under the JWT group, e.g. the websocket feed.
	Streams map[string]http.Handler
}

// SetupRoutes 设置路由
func SetupRoutes(router *gin.Engine, deps RouteDeps) {
	router.Use(middleware.CORS(nil))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authHandler := NewAuthHandler(deps.Credentials, deps.JWT, deps.Login)
	alertHandler := NewAlertHandler(deps.Engine, deps.History)
	ruleHandler := NewRuleHandler(deps.Engine)
	channelHandler := NewChannelHandler(deps.Engine)
	systemHandler := NewSystemHandler(deps.Engine, deps.AppName)

	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)

		protected := api.Group("/")
		protected.Use(middleware.JWTMiddleware(deps.JWT.SecretKey), middleware.RequireRole("admin"))
		{
			alerts := protected.Group("/alerts")
			{
				alerts.GET("/active", alertHandler.ListActive)
				alerts.GET("/stats", alertHandler.Stats)
				alerts.GET("/history", alertHandler.History)
				alerts.POST("/manual", alertHandler.TriggerManual)
				alerts.POST("/:id/resolve", alertHandler.Resolve)
			}

			rules := protected.Group("/rules")
			{
				rules.GET("", ruleHandler.List)
				rules.PUT("/:id/enabled", ruleHandler.SetEnabled)
				rules.POST("/:id/cooldown/reset", ruleHandler.ResetCooldown)
			}

			protected.GET("/channels", channelHandler.List)
			protected.GET("/system/status", systemHandler.GetStatus)

			for path, handler := range deps.Streams {
				protected.GET(path, gin.WrapH(handler))
			}
		}
	}
}
