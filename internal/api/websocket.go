package api

import (
	"net/http"
	"sort"
	"time"

	"go-liveclass/internal/auth"
	"go-liveclass/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WebSocketHandler struct {
	hub *websocket.Hub
}

func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

type WebSocketInfoResponse struct {
	TotalConnections int                 `json:"total_connections"`
	Unjoined         int                 `json:"unjoined"`
	ClassStats       map[string]int      `json:"class_stats"`
	Connections      []WebSocketUserInfo `json:"connections"`
	ServerTime       string              `json:"server_time"`
}

type WebSocketUserInfo struct {
	ConnectionID  string `json:"connection_id"`
	UserID        string `json:"user_id"`
	ClassID       string `json:"class_id"`
	Authenticated bool   `json:"authenticated"`
	ConnectedAt   string `json:"connected_at"`
	LastSeen      string `json:"last_seen"`
}

type ClassConnectionStatsResponse struct {
	ClassID          string   `json:"class_id"`
	TotalConnections int      `json:"total_connections"`
	Users            []string `json:"users"`
}

// HandleWebSocket upgrades the request. The identity, if any, was placed in
// the context by the auth middleware on the route.
// @Router /ws [get]
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	var identity *auth.Identity
	if id, ok := auth.IdentityFromContext(c); ok {
		identity = &id
	}
	h.hub.ServeWS(c.Writer, c.Request, identity)
}

// GetStats reports open connections, per class and in total.
// @Router /api/live/stats [get]
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	stats := h.hub.Stats()
	resp := WebSocketInfoResponse{
		ClassStats:  make(map[string]int, len(stats)),
		Connections: []WebSocketUserInfo{},
		ServerTime:  time.Now().UTC().Format(time.RFC3339),
	}
	for classID, n := range stats {
		resp.TotalConnections += n
		if classID == "" {
			resp.Unjoined = n
			continue
		}
		resp.ClassStats[classID] = n
	}

	for _, conn := range h.hub.Connections() {
		resp.Connections = append(resp.Connections, WebSocketUserInfo{
			ConnectionID:  conn.ID,
			UserID:        conn.UserID,
			ClassID:       conn.ClassID,
			Authenticated: conn.Authenticated,
			ConnectedAt:   conn.ConnectedAt.UTC().Format(time.RFC3339),
			LastSeen:      conn.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	sort.SliceStable(resp.Connections, func(i, j int) bool {
		return resp.Connections[i].ClassID < resp.Connections[j].ClassID
	})

	c.JSON(http.StatusOK, resp)
}

// GetClassMembers lists who is connected to one class.
// @Router /api/live/classes/{id} [get]
func (h *WebSocketHandler) GetClassMembers(c *gin.Context) {
	classID := c.Param("id")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Class ID is required"})
		return
	}

	c.JSON(http.StatusOK, ClassConnectionStatsResponse{
		ClassID:          classID,
		TotalConnections: h.hub.ClassClientCount(classID),
		Users:            h.hub.ClassMembers(classID),
	})
}
