package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the gin engine, following the teacher's
// internal/server/router.go CORS + route-group idiom. Auth is out of
// scope (spec §1 Non-goals), so there is no protected-group split.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5174"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.Use(attachTraceContext())

	router.GET("/healthcheck", HealthCheck)

	brains := router.Group("/brains")
	{
		brains.POST("", h.CreateBrain)
		brains.GET("/:id", h.GetBrain)
		brains.DELETE("/:id", h.DeleteBrain)
	}

	bg := router.Group("/brainGraph")
	{
		bg.POST("/process_text", h.ProcessText)
		bg.POST("/answer", h.Answer)
		bg.GET("/getNodeEdge/:brain_id", h.GetNodeEdge)
		bg.GET("/getSourceIds", h.GetSourceIds)
		bg.GET("/getNodesBySourceId", h.GetNodesBySourceId)
	}

	sources := router.Group("/sources")
	{
		sources.POST("/:kind", h.CreateSource)
		sources.GET("/:kind", h.ListSources)
		sources.DELETE("/:kind/:id", h.DeleteSource)
	}

	sessions := router.Group("/chatSessions")
	{
		sessions.POST("", h.CreateChatSession)
		sessions.GET("", h.ListChatSessions)
		sessions.GET("/:id/messages", h.ListChatMessages)
		sessions.DELETE("/:id", h.DeleteChatSession)
	}

	return router
}
