package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/session-service/internal/challenge"
	"github.com/fathima-sithara/session-service/internal/models"
	"github.com/fathima-sithara/session-service/internal/services"
	"github.com/fathima-sithara/session-service/internal/token"
)

// Handler exposes the auth and profile routes. In development mode the
// generated verification codes are echoed back to the caller; nothing is
// ever transmitted out of process.
type Handler struct {
	svc     *services.AuthService
	devMode bool
	logger  *zap.Logger
}

func NewHandler(svc *services.AuthService, devMode bool, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, devMode: devMode, logger: logger}
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

func (h *Handler) RequestVerification(c *fiber.Ctx) error {
	var req models.RequestVerificationReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.PhoneNumber == "" {
		return fail(c, fiber.StatusBadRequest, "phoneNumber required")
	}
	code, err := h.svc.RequestVerification(c.Context(), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, challenge.ErrAlreadyRegistered) {
			return fail(c, fiber.StatusConflict, "phone number already registered")
		}
		h.logger.Error("request verification failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	resp := fiber.Map{"success": true, "message": "verification code sent"}
	if h.devMode {
		resp["developmentCode"] = code
	}
	return c.JSON(resp)
}

func (h *Handler) VerifyCode(c *fiber.Ctx) error {
	var req models.VerifyCodeReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.PhoneNumber == "" || req.Code == "" {
		return fail(c, fiber.StatusBadRequest, "phoneNumber and code required")
	}
	attemptsLeft, err := h.svc.VerifyCode(c.Context(), req.PhoneNumber, req.Code)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true, "message": "phone number verified"})
	case errors.Is(err, challenge.ErrCodeMismatch):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":      false,
			"message":      "incorrect verification code",
			"attemptsLeft": attemptsLeft,
		})
	case errors.Is(err, challenge.ErrChallengeNotFound):
		return fail(c, fiber.StatusBadRequest, "no verification pending for this number")
	case errors.Is(err, challenge.ErrChallengeExpired):
		return fail(c, fiber.StatusBadRequest, "verification code has expired")
	case errors.Is(err, challenge.ErrTooManyAttempts):
		return fail(c, fiber.StatusBadRequest, "too many failed attempts, request a new code")
	default:
		h.logger.Error("verify code failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) ResendVerification(c *fiber.Ctx) error {
	var req models.RequestVerificationReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.PhoneNumber == "" {
		return fail(c, fiber.StatusBadRequest, "phoneNumber required")
	}
	code, err := h.svc.ResendVerification(c.Context(), req.PhoneNumber)
	if err != nil {
		h.logger.Error("resend verification failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	resp := fiber.Map{"success": true}
	if h.devMode {
		resp["developmentCode"] = code
	}
	return c.JSON(resp)
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req models.RegisterReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.PhoneNumber == "" || req.Password == "" || req.Name == "" {
		return fail(c, fiber.StatusBadRequest, "phoneNumber, password and name required")
	}
	signed, user, err := h.svc.Register(c.Context(), req.PhoneNumber, req.Password, req.Name)
	switch {
	case err == nil:
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "token": signed, "user": user})
	case errors.Is(err, services.ErrPhoneNotVerified):
		return fail(c, fiber.StatusForbidden, "phone number has not been verified")
	case errors.Is(err, services.ErrAlreadyRegistered):
		return fail(c, fiber.StatusConflict, "phone number already registered")
	default:
		h.logger.Error("register failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req models.LoginReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.PhoneNumber == "" || req.Password == "" {
		return fail(c, fiber.StatusBadRequest, "phoneNumber and password required")
	}
	signed, user, err := h.svc.Login(c.Context(), req.PhoneNumber, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return fail(c, fiber.StatusUnauthorized, "invalid phone number or password")
		}
		h.logger.Error("login failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	return c.JSON(fiber.Map{"success": true, "token": signed, "user": user})
}

func (h *Handler) Validate(c *fiber.Ctx) error {
	var req models.ValidateReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.Token == "" {
		return fail(c, fiber.StatusBadRequest, "token required")
	}
	user, err := h.svc.ValidateToken(c.Context(), req.Token)
	if err != nil {
		return h.tokenFailure(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "user": user})
}

// Refresh expects the current token as a bearer header and answers with a
// freshly minted one.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	raw, ok := c.Locals(localToken).(string)
	if !ok || raw == "" {
		return fail(c, fiber.StatusUnauthorized, "missing bearer token")
	}
	signed, user, err := h.svc.Refresh(c.Context(), raw)
	if err != nil {
		return h.tokenFailure(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "token": signed, "user": user})
}

// Logout accepts the token in the bearer header or the body and always
// succeeds, so a client can clear its state no matter what it still holds.
func (h *Handler) Logout(c *fiber.Ctx) error {
	raw := bearerFromHeader(c)
	if raw == "" {
		var req models.LogoutReq
		if err := c.BodyParser(&req); err == nil {
			raw = req.Token
		}
	}
	h.svc.Logout(c.Context(), raw)
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	user, ok := c.Locals(localUser).(*models.User)
	if !ok {
		return fail(c, fiber.StatusUnauthorized, "unauthorized")
	}
	var req models.UpdateProfileReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	updated, err := h.svc.UpdateProfile(c.Context(), user.ID, req)
	if err != nil {
		h.logger.Error("profile update failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	return c.JSON(fiber.Map{"success": true, "user": updated})
}

func (h *Handler) OnlineUsers(c *fiber.Ctx) error {
	users, err := h.svc.OnlineUsers(c.Context())
	if err != nil {
		h.logger.Error("online users lookup failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}
	if users == nil {
		users = []*models.User{}
	}
	return c.JSON(fiber.Map{"success": true, "users": users})
}

func (h *Handler) tokenFailure(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return fail(c, fiber.StatusUnauthorized, "token expired")
	case errors.Is(err, token.ErrTokenInvalid):
		return fail(c, fiber.StatusUnauthorized, "invalid token")
	case errors.Is(err, services.ErrUserNotFound):
		return fail(c, fiber.StatusUnauthorized, "unknown user")
	default:
		h.logger.Error("token validation failed", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal server error")
	}
}
