package middleware

import (
	"net/url"

	"github.com/cinelog/catalog-api/internal/auth"
	"github.com/cinelog/catalog-api/internal/models"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Session cookie names.
const (
	CookieUsername = "username"
	CookieToken    = "id"
)

const (
	localsUser     = "session_user"
	localsFilter   = "session_filter"
	localsUsername = "username"
)

// NameExtractor picks the claimed username out of a request.
type NameExtractor func(c *fiber.Ctx) string

// NameFromCookie reads the username cookie.
func NameFromCookie(c *fiber.Ctx) string {
	return DecodeCookie(c.Cookies(CookieUsername))
}

// NameFromParam reads the username from a path parameter.
func NameFromParam(param string) NameExtractor {
	return func(c *fiber.Ctx) string {
		raw := c.Params(param)
		if name, err := url.PathUnescape(raw); err == nil {
			return name
		}
		return raw
	}
}

// DecodeCookie undoes the escaping applied when the cookie was set.
func DecodeCookie(v string) string {
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

type SessionMiddleware struct {
	guard  *auth.Guard
	logger *logrus.Logger
}

func NewSessionMiddleware(guard *auth.Guard, logger *logrus.Logger) *SessionMiddleware {
	return &SessionMiddleware{guard: guard, logger: logger}
}

// Authenticate resolves the session from the claimed name and the id cookie.
// On success the user and its session filter are stored in the request locals.
func (s *SessionMiddleware) Authenticate(name NameExtractor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		username := name(c)
		token := c.Cookies(CookieToken)

		user, filter, err := s.guard.Authenticate(c.UserContext(), username, token)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"path":     c.Path(),
				"username": username,
			}).Debug("Session authentication failed")
			return apperrors.Respond(c, err)
		}

		c.Locals(localsUser, user)
		c.Locals(localsFilter, filter)
		c.Locals(localsUsername, user.Name)

		return c.Next()
	}
}

// GetUser returns the authenticated user, or nil.
func GetUser(c *fiber.Ctx) *models.User {
	if user, ok := c.Locals(localsUser).(*models.User); ok {
		return user
	}
	return nil
}

// GetSessionFilter returns the filter the session resolved to.
func GetSessionFilter(c *fiber.Ctx) models.SessionFilter {
	if f, ok := c.Locals(localsFilter).(models.SessionFilter); ok {
		return f
	}
	return models.SessionFilter{}
}

// GetUsername returns the authenticated username, or the claimed one from
// the username cookie when the route is unauthenticated.
func GetUsername(c *fiber.Ctx) string {
	if name, ok := c.Locals(localsUsername).(string); ok {
		return name
	}
	return NameFromCookie(c)
}
