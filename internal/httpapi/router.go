package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Marker-bit/mrkrbt-chat/internal/chat"
	"github.com/Marker-bit/mrkrbt-chat/internal/common"
	"github.com/Marker-bit/mrkrbt-chat/internal/config"
	"github.com/Marker-bit/mrkrbt-chat/internal/httpapi/handlers"
	"github.com/Marker-bit/mrkrbt-chat/internal/httpapi/middleware"
	"github.com/Marker-bit/mrkrbt-chat/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, titles chat.TitlePublisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, titles)

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// captcha
	r.POST("/captcha", h.SendCaptcha)

	// users register
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUserByID)

	// auth
	r.POST("/login", h.Login)

	// model catalog is public; usable flags come from the key cookie
	r.GET("/models", h.ListModels)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.PATCH("/me", h.UpdateMe)

	// chat turns (JWT required)
	authGroup.POST("/chat", h.SendTurn)
	authGroup.GET("/chats", h.ListChats)
	authGroup.GET("/chats/search", h.SearchChats)
	authGroup.GET("/chats/:chat_id", h.GetChat)
	authGroup.PATCH("/chats/:chat_id", h.UpdateChat)
	authGroup.DELETE("/chats/:chat_id", h.DeleteChat)
	authGroup.GET("/chats/:chat_id/status", h.ChatStatus)
	authGroup.POST("/chats/:chat_id/branch", h.BranchChat)
	authGroup.GET("/chats/:chat_id/export", h.ExportChat)

	// per-user provider keys (cookie-held)
	authGroup.GET("/keys", h.GetKeys)
	authGroup.PUT("/keys", h.SetKeys)
	authGroup.POST("/keys/export", h.ExportKeys)
	authGroup.POST("/keys/import", h.ImportKeys)

	return r
}
