package stream

import (
	"context"
	"encoding/json"
	"errors"

	"backend-platego/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

// RegisterRoutes mounts the realtime endpoint. The bearer token travels as a
// query parameter because browser WebSocket clients cannot set headers.
func RegisterRoutes(r fiber.Router, hub *Hub, jwtSecret string) {
	secret := []byte(jwtSecret)

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		claims, err := claimsFromToken(c.Query("token"), secret)
		if err != nil {
			// WriteMessage keeps the frame free of the trailing newline that
			// json.Encoder (used by WriteJSON) appends, matching the hub's
			// broadcast frames.
			payload, _ := json.Marshal(Envelope{Event: "error", Data: []byte(`"unauthorized"`)})
			_ = c.WriteMessage(websocket.TextMessage, payload)
			return
		}

		client := hub.Register(claims.UserID, claims.Role)
		defer hub.Unregister(client)

		// Write pump ends when Unregister closes the Send channel.
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		ctx := context.Background()
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}
			hub.HandleFrame(ctx, client, raw)
		}
	}))
}

func claimsFromToken(token string, secret []byte) (*auth.Claims, error) {
	if token == "" {
		return nil, errors.New("missing token")
	}
	parsed, err := jwt.ParseWithClaims(token, &auth.Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*auth.Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}
