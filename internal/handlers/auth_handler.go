package handlers

import (
	"ecofinds/internal/logger"
	"ecofinds/internal/middleware"
	"ecofinds/internal/presenter"
	"ecofinds/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
	mapper      *presenter.Mapper
	log         *logger.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, mapper *presenter.Mapper, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		mapper:      mapper,
		log:         log.With("handler", "auth"),
	}
}

// RegisterRoutes registers the authentication routes with the Fiber app.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/signup", h.HandleSignup)
	authRoutes.Post("/login", h.HandleLogin)
	authRoutes.Get("/me", middleware.AuthRequired(h.authService, h.log), h.HandleMe)
}

// HandleSignup handles new user registration.
func (h *AuthHandler) HandleSignup(c *fiber.Ctx) error {
	var input services.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Invalid request body", err)
	}

	result, err := h.authService.Register(c.UserContext(), input)
	if err != nil {
		return respondError(c, h.log, "Registration failed", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      "User registered successfully",
		"user":         h.mapper.User(result.User),
		"access_token": result.Token,
	})
}

// HandleLogin handles user login and issues a JWT token.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var input services.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, "Invalid request body", err)
	}

	result, err := h.authService.Login(c.UserContext(), input)
	if err != nil {
		return respondError(c, h.log, "Authentication failed", err)
	}

	return c.JSON(fiber.Map{
		"message":      "Login successful",
		"user":         h.mapper.User(result.User),
		"access_token": result.Token,
	})
}

// HandleMe returns the account bound to the bearer token.
func (h *AuthHandler) HandleMe(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(uint)

	user, err := h.authService.CurrentUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, "Could not load user", err)
	}

	return c.JSON(fiber.Map{
		"user": h.mapper.User(user),
	})
}
