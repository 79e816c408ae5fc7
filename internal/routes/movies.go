package routes

import (
	"github.com/cinelog/catalog-api/internal/catalog"
	"github.com/cinelog/catalog-api/internal/middleware"
	"github.com/cinelog/catalog-api/internal/models"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type MovieHandler struct {
	writer *catalog.Writer
	reader *catalog.Reader
	logger *logrus.Logger
}

func NewMovieHandler(writer *catalog.Writer, reader *catalog.Reader, logger *logrus.Logger) *MovieHandler {
	return &MovieHandler{
		writer: writer,
		reader: reader,
		logger: logger,
	}
}

// List returns every movie
// @Summary List movies
// @Tags Movies
// @Produce json
// @Success 200 {array} models.MovieView
// @Failure 500 {object} apperrors.ErrorResponse "Database error"
// @Router /api/movies [get]
func (h *MovieHandler) List(c *fiber.Ctx) error {
	movies, err := h.reader.ListAll(c.UserContext())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list movies")
		return apperrors.Respond(c, err)
	}
	return c.JSON(movies)
}

// ListByOwner returns the movies created by the user in the path
// @Summary List a user's movies
// @Description Requires the id cookie of the user named in the path
// @Tags Movies
// @Produce json
// @Param username path string true "Username"
// @Success 200 {array} models.MovieView
// @Failure 401 {object} apperrors.ErrorResponse "Unauthorized"
// @Failure 500 {object} apperrors.ErrorResponse "Database error"
// @Router /api/movies/{username} [get]
func (h *MovieHandler) ListByOwner(c *fiber.Ctx) error {
	movies, err := h.reader.ListByOwner(c.UserContext(), middleware.GetUser(c))
	if err != nil {
		h.logger.WithError(err).WithField("username", middleware.GetUsername(c)).Error("Failed to list owned movies")
		return apperrors.Respond(c, err)
	}
	return c.JSON(movies)
}

// Create adds a movie owned by the session user
// @Summary Add a movie
// @Description The image is a JSON array of byte values (a base64 string is also accepted)
// @Tags Movies
// @Accept json
// @Produce json
// @Param request body models.MovieUploadRequest true "Movie"
// @Param Idempotency-Key header string false "UUID; retries with the same key replay the first response"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} apperrors.ErrorResponse "Invalid request"
// @Failure 401 {object} apperrors.ErrorResponse "Unauthorized"
// @Failure 409 {object} apperrors.ErrorResponse "Movie already exists"
// @Failure 500 {object} apperrors.ErrorResponse "Database or storage error"
// @Router /api/add-movie [post]
func (h *MovieHandler) Create(c *fiber.Ctx) error {
	var req models.MovieUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.Respond(c, apperrors.BadRequest(apperrors.MsgInvalidBody))
	}
	if req.Title == "" || req.Author == "" {
		return apperrors.Respond(c, apperrors.BadRequest("Title and author are required"))
	}

	_, err := h.writer.CreateMovie(c.UserContext(), middleware.GetUser(c), middleware.GetSessionFilter(c), req.Title, req.Author, req.Image)
	if err != nil {
		return apperrors.Respond(c, err)
	}

	return c.JSON(models.MessageResponse{Message: "Movie added"})
}

// Delete authenticates the caller and returns an empty list. Movies are
// never removed.
// @Summary Delete movie (no-op)
// @Tags Movies
// @Produce json
// @Success 200 {array} models.MovieView
// @Failure 401 {object} apperrors.ErrorResponse "Unauthorized"
// @Router /api/movies [delete]
func (h *MovieHandler) Delete(c *fiber.Ctx) error {
	return c.JSON([]models.MovieView{})
}
