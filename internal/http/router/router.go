package router

import (
	"github.com/gin-gonic/gin"

	"github.com/odtboun/River/internal/http/handler"
	"github.com/odtboun/River/internal/http/middleware"
	"github.com/odtboun/River/internal/service"
)

type RouterConfig struct {
	// CookieSecure marks the device cookie Secure.
	CookieSecure bool
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Device(cfg.CookieSecure))
	{
		sessionHandler := handler.NewSessionHandler(services.Sessions())
		AppRouter(v1, sessionHandler)
		SessionRouter(v1.Group("/session"), sessionHandler)

		identityHandler := handler.NewIdentityHandler(services.Sessions())
		IdentityRouter(v1.Group("/identity"), identityHandler)
	}
}
