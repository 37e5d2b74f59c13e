package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatmimic/internal/common"
	"github.com/suPer8Hu/chatmimic/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatmimic/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, jwtSecret string, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.AccessLog(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired(jwtSecret))
	v1.POST("/events", h.PostEvent)
	v1.POST("/chats/:chat_id/imports", h.CreateImport)
	v1.GET("/chats/:chat_id/imports", h.ListImports)
	v1.GET("/imports/:id", h.GetImport)
	v1.GET("/chats/:chat_id/users", h.ListUsers)
	v1.POST("/chats/:chat_id/say", h.Say)
	return r
}
