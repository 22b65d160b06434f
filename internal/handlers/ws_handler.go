package handlers

import (
	"io"
	"log"

	"github.com/gin-gonic/gin"

	"taskhive/internal/realtime"
)

// WSHandler attaches a client connection to the event hub so dispatch
// notifications reach the requester and provider apps as they happen.
type WSHandler struct {
	hub *realtime.Hub
}

func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// GET /ws
func (h *WSHandler) Subscribe(c *gin.Context) {
	accountID, _ := getAccountAndRole(c)

	conn, err := realtime.Upgrade(c.Writer, c.Request)
	if err != nil {
		log.Printf("[ws][upgrade][err] account=%s: %v", accountID, err)
		return
	}
	h.hub.Register(accountID, conn)
	log.Printf("[ws][connected] account=%s", accountID)

	// the read loop only drains pings and detects disconnects; clients
	// receive events, they do not send commands over this channel
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			if err != io.EOF {
				log.Printf("[ws][read][err] account=%s: %v", accountID, err)
			}
			break
		}
	}

	h.hub.Unregister(accountID, conn)
	log.Printf("[ws][disconnected] account=%s", accountID)
}
