package controllers

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/Marketly/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/Marketly/internal/pkg/imagestore"
	"github.com/ManuelReschke/Marketly/internal/pkg/upload"
	"github.com/ManuelReschke/Marketly/internal/pkg/usercontext"
)

// UploadController accepts listing photos, normalizes them to WebP and
// stores them.
type UploadController struct {
	store     imagestore.Store
	publicURL string
	normalize func(r io.Reader, mime string) (*imageprocessor.Result, error)
	now       func() time.Time
}

// NewUploadController creates the controller. publicURL turns relative local
// storage links into absolute URLs.
func NewUploadController(store imagestore.Store, publicURL string) *UploadController {
	return &UploadController{
		store:     store,
		publicURL: strings.TrimRight(publicURL, "/"),
		normalize: imageprocessor.Normalize,
		now:       time.Now,
	}
}

func (uc *UploadController) HandleUploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", "image file is required")
	}
	if err := upload.ValidateSize(file.Size); err != nil {
		return uploadError(c, err)
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", "could not read image")
	}
	mime, err := upload.ValidateImageBySniff(file.Filename, head[:n])
	if err != nil {
		return uploadError(c, err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return respondError(c, err)
	}

	result, err := uc.normalize(src, mime)
	if err != nil {
		if errors.Is(err, imageprocessor.ErrUnsupported) || errors.Is(err, imageprocessor.ErrTooLarge) {
			return jsonError(c, fiber.StatusBadRequest, "invalid_image", "The image could not be processed")
		}
		return respondError(c, err)
	}

	key := imagestore.ObjectKey(uuid.NewString(), uc.now())
	url, err := uc.store.Put(c.UserContext(), key, result.Data, result.ContentType)
	if err != nil {
		log.Errorf("[Upload] Storing %s: %v", key, err)
		return jsonError(c, fiber.StatusServiceUnavailable, "storage_unavailable", "Image storage is unavailable, please try again")
	}
	if strings.HasPrefix(url, "/") {
		url = uc.publicURL + url
	}

	log.Infof("[Upload] User %d uploaded %s (%dx%d)", usercontext.GetUserID(c), key, result.Width, result.Height)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":    url,
		"width":  result.Width,
		"height": result.Height,
	})
}

func uploadError(c *fiber.Ctx, err error) error {
	if errors.Is(err, upload.ErrTooLarge) {
		return jsonError(c, fiber.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	}
	return jsonError(c, fiber.StatusBadRequest, "invalid_image", err.Error())
}
