package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/fathima-sithara/session-service/internal/handlers"
	"github.com/fathima-sithara/session-service/internal/ws"
)

func Setup(app *fiber.App, h *handlers.Handler, presence *ws.Server) {
	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/request-verification", h.RequestVerification)
	auth.Post("/verify-code", h.VerifyCode)
	auth.Post("/resend-verification", h.ResendVerification)
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)
	auth.Post("/validate", h.Validate)
	auth.Post("/refresh", h.RequireAuth, h.Refresh)
	auth.Post("/logout", h.Logout)

	user := api.Group("/user", h.RequireAuth)
	user.Put("/profile", h.UpdateProfile)
	user.Get("/online", h.OnlineUsers)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(presence.HandleWS()))
}
