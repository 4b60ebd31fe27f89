package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grassehh/pso-matchmaker-sub000/internal/websocket"
)

type WebSocketHandler struct {
	hub *websocket.Hub
}

func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// HandleWebSocket upgrades the connection and subscribes the caller to match
// lifecycle events.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	websocket.ServeWs(h.hub, c.Writer, c.Request, userID.(string))
}
