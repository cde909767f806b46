package auth

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts /register, /login and /me. limiter guards the credential
// endpoints; authMiddleware guards /me.
func RegisterRoutes(r fiber.Router, svc *Service, limiter, authMiddleware fiber.Handler) {
	r.Post("/register", limiter, func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		user, err := svc.Register(c.Context(), req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": "User registered successfully",
			"user":    user,
		})
	})

	r.Post("/login", limiter, func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		resp, err := svc.Login(c.Context(), req)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		user, err := svc.Me(c.Context(), UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(user)
	})
}
