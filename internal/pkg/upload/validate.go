package upload

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxImageBytes is the per-file upload limit for listing images.
const MaxImageBytes = 5 << 20

var (
	ErrUnsupportedFormat = errors.New("only JPG, JPEG, PNG, GIF, WEBP and BMP images are supported")
	ErrHTMLContent       = errors.New("invalid file type: HTML content is not allowed")
	ErrSVGContent        = errors.New("SVG/XML images are not supported")
	ErrUnsupportedType   = errors.New("the file type is not supported")
	ErrTooLarge          = errors.New("image exceeds the 5 MB limit")
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	// SVG stays out: scriptable without a sanitizer
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// ValidateImageBySniff checks the provided filename (extension) and the first bytes (head)
// against a whitelist of image types. Returns detected mime or an error.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", ErrUnsupportedFormat
	}

	detected := http.DetectContentType(head)

	// Block obvious scriptable types regardless of extension
	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "application/xhtml") {
		return "", ErrHTMLContent
	}
	if strings.HasPrefix(detected, "text/xml") || strings.HasPrefix(detected, "application/xml") || detected == "image/svg+xml" {
		return "", ErrSVGContent
	}

	if allowedMime[detected] {
		return detected, nil
	}
	return "", ErrUnsupportedType
}

// ValidateSize rejects empty files and files above MaxImageBytes.
func ValidateSize(size int64) error {
	if size <= 0 {
		return ErrUnsupportedType
	}
	if size > MaxImageBytes {
		return ErrTooLarge
	}
	return nil
}
