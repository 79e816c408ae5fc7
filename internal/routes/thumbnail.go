package routes

import (
	"errors"

	"github.com/cinelog/catalog-api/internal/blob"
	"github.com/cinelog/catalog-api/internal/models"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ThumbnailHandler struct {
	blobs  blob.Store
	logger *logrus.Logger
}

func NewThumbnailHandler(blobs blob.Store, logger *logrus.Logger) *ThumbnailHandler {
	return &ThumbnailHandler{blobs: blobs, logger: logger}
}

// Get returns the stored image as a JSON array of byte values
// @Summary Fetch an image
// @Tags Movies
// @Produce json
// @Param key path string true "Image key (image_url of a movie)"
// @Success 200 {array} integer
// @Failure 404 {object} apperrors.ErrorResponse "Not found"
// @Failure 500 {object} apperrors.ErrorResponse "Storage error"
// @Router /api/thumbnail/{key} [get]
func (h *ThumbnailHandler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return apperrors.Respond(c, apperrors.NotFound(nil))
	}

	data, err := h.blobs.Get(c.UserContext(), key)
	if errors.Is(err, blob.ErrNotFound) {
		return apperrors.Respond(c, apperrors.NotFound(err))
	}
	if err != nil {
		h.logger.WithError(err).WithField("image_key", key).Error("Failed to fetch image")
		return apperrors.Respond(c, apperrors.BlobError(err))
	}

	return c.JSON(models.ImageBytes(data))
}
