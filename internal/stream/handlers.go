package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// MessageHandler receives each text frame a client sends on a session.
type MessageHandler func(sessionID string, msg []byte)

func RegisterRoutes(r fiber.Router, hub *Hub, onMessage MessageHandler) {
	r.Get("/ws/:sessionID", websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("sessionID")
		client := hub.Register(sessionID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			if mt == websocket.TextMessage && onMessage != nil {
				onMessage(sessionID, msg)
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
