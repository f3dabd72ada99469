package api

import (
	"go-liveclass/internal/auth"
	"go-liveclass/internal/middleware"
	"go-liveclass/internal/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Router struct {
	am *auth.AuthMiddleware
	mh *MessageHandlers
	wh *WebSocketHandler

	// wsAuthRequired rejects upgrades without a valid token
	wsAuthRequired bool

	standard *middleware.IPRateLimiter
	strict   *middleware.IPRateLimiter
}

func NewRouter(db *gorm.DB, hub *websocket.Hub, am *auth.AuthMiddleware, wsAuthRequired bool) *Router {
	return &Router{
		am:             am,
		mh:             NewMessageHandlers(db),
		wh:             NewWebSocketHandler(hub),
		wsAuthRequired: wsAuthRequired,
		standard:       middleware.NewIPRateLimiter(middleware.StandardRateLimit),
		strict:         middleware.NewIPRateLimiter(middleware.StrictRateLimit),
	}
}

func (r *Router) RegisterRoutes(router *gin.Engine) {
	{
		unprotected := router.Group("/")
		unprotected.Use(middleware.RateLimitMiddleware(r.standard))
		unprotected.GET("/hc", HealthCheckHandler)
	}

	{
		ws := router.Group("/ws")
		ws.Use(middleware.RateLimitMiddleware(r.strict))
		if r.wsAuthRequired {
			ws.Use(r.am.RequireAuth())
		} else {
			ws.Use(r.am.OptionalAuth())
		}
		ws.GET("", r.wh.HandleWebSocket)
	}

	{
		protected := router.Group("/api")
		protected.Use(middleware.RateLimitMiddleware(r.standard), r.am.RequireAuth())
		protected.GET("/classes/:id/messages", r.mh.GetClassMessagesHandler)
		protected.GET("/live/stats", r.wh.GetStats)
		protected.GET("/live/classes/:id", r.wh.GetClassMembers)
	}
}

// Stop releases the rate limiter cleanup goroutines.
func (r *Router) Stop() {
	r.standard.Stop()
	r.strict.Stop()
}

func HealthCheckHandler(c *gin.Context) {
	c.String(200, "Running")
}
