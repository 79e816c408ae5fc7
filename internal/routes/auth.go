package routes

import (
	"net/url"
	"time"

	"github.com/cinelog/catalog-api/internal/auth"
	"github.com/cinelog/catalog-api/internal/middleware"
	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/session"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const redirectPath = "/movies"

// AuthHandler handles login, registration and logout
type AuthHandler struct {
	accounts     *auth.Accounts
	codec        *session.Codec
	secureCookie bool
	logger       *logrus.Logger
}

func NewAuthHandler(accounts *auth.Accounts, codec *session.Codec, secureCookie bool, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		codec:        codec,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// Login handles user login
// @Summary User login
// @Description Check credentials and set the username and id session cookies
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.Credentials true "Login credentials"
// @Success 200 {object} models.RedirectResponse
// @Failure 400 {object} apperrors.ErrorResponse "Invalid request"
// @Failure 401 {object} apperrors.ErrorResponse "Wrong username or password"
// @Failure 500 {object} apperrors.ErrorResponse "Database error"
// @Router /api/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.Credentials
	if err := c.BodyParser(&req); err != nil {
		return apperrors.Respond(c, apperrors.BadRequest(apperrors.MsgInvalidBody))
	}

	user, err := h.accounts.Login(c.UserContext(), req.Name, req.Password)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	h.setSessionCookies(c, user)
	return c.JSON(models.RedirectResponse{RedirectPath: redirectPath})
}

// Register handles user registration
// @Summary User registration
// @Description Create a user with a fresh session token and set the session cookies
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.Credentials true "Registration data"
// @Success 200 {object} models.RedirectResponse
// @Failure 400 {object} apperrors.ErrorResponse "Invalid request"
// @Failure 401 {object} apperrors.ErrorResponse "Username already exists"
// @Failure 500 {object} apperrors.ErrorResponse "Database error"
// @Router /api/users [post]
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.Credentials
	if err := c.BodyParser(&req); err != nil {
		return apperrors.Respond(c, apperrors.BadRequest(apperrors.MsgInvalidBody))
	}

	user, err := h.accounts.Register(c.UserContext(), req.Name, req.Password)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	h.setSessionCookies(c, user)
	return c.JSON(models.RedirectResponse{RedirectPath: redirectPath})
}

// Logout acknowledges a logout. Sessions are not revoked server-side.
// @Summary Logout
// @Tags Auth
// @Success 200 "Empty body"
// @Router /logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	username := c.Cookies(middleware.CookieUsername)
	if c.Cookies("uuid") != "" && username != "" {
		h.logger.WithField("username", middleware.DecodeCookie(username)).Info("User logged out")
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *AuthHandler) setSessionCookies(c *fiber.Ctx, user *models.User) {
	expires := h.codec.Expiry()
	c.Cookie(h.cookie(middleware.CookieUsername, url.PathEscape(user.Name), expires))
	c.Cookie(h.cookie(middleware.CookieToken, user.SessionToken, expires))
}

func (h *AuthHandler) cookie(name, value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}
