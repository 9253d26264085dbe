package router

import (
	"github.com/gin-gonic/gin"

	"github.com/odtboun/River/internal/http/handler"
)

func AppRouter(rg *gin.RouterGroup, h *handler.SessionHandler) {
	rg.GET("/app", h.Open)
}

func SessionRouter(rg *gin.RouterGroup, h *handler.SessionHandler) {
	rg.GET("", h.Get)
	rg.GET("/events", h.Events)
	rg.POST("/view", h.SetView)
	rg.PUT("/fields", h.SetFields)
	rg.PUT("/form", h.UpdateForm)
	rg.PUT("/form/total", h.OverrideTotal)
	rg.DELETE("/form/total", h.ResetTotal)
	rg.POST("/actions/:action", h.Perform)
	rg.POST("/reset", h.Reset)
	rg.DELETE("/error", h.DismissError)
}
