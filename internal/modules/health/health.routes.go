package health

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.Health)
	router.GET("/ready", handler.Ready)
	router.GET("/alive", handler.Alive)
	router.GET("/agents", handler.ListAgents)
}
