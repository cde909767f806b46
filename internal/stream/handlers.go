package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes exposes topic to websocket clients at /ws. Inbound frames are
// read only to notice the peer going away.
func RegisterRoutes(r fiber.Router, hub *Hub, topic string) {
	r.Get("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		sub := hub.Register(topic)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range sub.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(sub)
		<-done
	}))
}
