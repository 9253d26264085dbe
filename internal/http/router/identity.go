package router

import (
	"github.com/gin-gonic/gin"

	"github.com/odtboun/River/internal/http/handler"
)

func IdentityRouter(rg *gin.RouterGroup, h *handler.IdentityHandler) {
	rg.POST("/burner", h.ConnectBurner)
	rg.DELETE("/burner", h.Clear)
	rg.POST("/external", h.ConnectExternal)
	rg.DELETE("", h.Disconnect)
	rg.GET("/export", h.Export)
	rg.POST("/import", h.Import)
}
