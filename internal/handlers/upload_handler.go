package handlers

import (
	"errors"
	"os"

	"ecofinds/internal/logger"
	"ecofinds/internal/storage"

	"github.com/gofiber/fiber/v2"
)

// UploadHandler serves stored product images.
type UploadHandler struct {
	store *storage.LocalImageStore
	log   *logger.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(store *storage.LocalImageStore, log *logger.Logger) *UploadHandler {
	return &UploadHandler{
		store: store,
		log:   log.With("handler", "upload"),
	}
}

// RegisterRoutes registers the upload routes with the Fiber app.
func (h *UploadHandler) RegisterRoutes(router fiber.Router) {
	router.Get(storage.UploadsPath+"/:filename", h.HandleServe)
}

// HandleServe streams a stored image by its stored name.
func (h *UploadHandler) HandleServe(c *fiber.Ctx) error {
	notFound := func() error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Image not found",
			"error":   "not found",
		})
	}

	path, err := h.store.Path(c.Params("filename"))
	if err != nil {
		return notFound()
	}
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			h.log.Warn("failed to stat image", "path", path, "error", err)
		}
		return notFound()
	}
	if info.IsDir() {
		return notFound()
	}
	return c.SendFile(path)
}
