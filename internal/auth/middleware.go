package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const claimsKey = "authClaims"

// Middleware extracts an optional bearer token and stores its claims on the
// request. Requests without a token pass through anonymously; only a present
// but invalid token fails.
func (s *Service) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header {
			return c.Next()
		}
		claims, err := s.Verify(tokenStr)
		if err != nil {
			return err
		}
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// ClaimsFrom returns the verified claims on the request, or nil.
func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(claimsKey).(*Claims)
	return claims
}

// IsAdmin reports whether the request carries a token for the configured
// admin entity. Admin callers see hidden properties.
func (s *Service) IsAdmin(c *fiber.Ctx) bool {
	claims := ClaimsFrom(c)
	return claims != nil && claims.EntitySlug == s.adminSlug
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler serves POST /auth/:entity/login.
func (s *Service) LoginHandler(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	result, err := s.Login(c.UserContext(), c.Params("entity"), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(result)
}
