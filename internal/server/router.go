package server

import (
	"net/http"
	"time"

	"github.com/ItzSjDude/hiva-node/internal/auth"
	"github.com/ItzSjDude/hiva-node/internal/config"
	"github.com/ItzSjDude/hiva-node/internal/metrics"
	"github.com/ItzSjDude/hiva-node/internal/mw"
	"github.com/ItzSjDude/hiva-node/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化中间件、REST API 与 WebSocket 端点。
func SetupRouter(cfg config.Config, h *Handler, gw *ws.Gateway) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	if cfg.Env != "prod" {
		api.POST("/auth/token", h.MintToken)
	}

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg))

	authed.POST("/parties", h.CreateParty)
	authed.GET("/parties", h.ListParties)
	authed.GET("/parties/:id", h.GetParty)
	authed.POST("/parties/:id/join", h.JoinParty)
	authed.DELETE("/parties/:id", h.EndParty)

	r.GET("/ws", ws.Serve(gw))

	return r
}
