// Package imageprocessor turns uploaded listing photos into upright,
// size-capped WebP images.
package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2/log"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	// MaxSide caps the longer edge of a stored listing image.
	MaxSide = 1600
	// Quality is the lossy WebP quality.
	Quality = 82
	// MaxWorkers bounds concurrent decodes; each holds a full bitmap.
	MaxWorkers = 3
	// MaxInputBytes is the largest upload accepted for decoding.
	MaxInputBytes = 10 << 20
)

var (
	ErrTooLarge     = errors.New("image is too large")
	ErrUnsupported  = errors.New("image format is not supported")
	throttle        = make(chan struct{}, MaxWorkers)
	activeProcesses int32
)

// Result is a normalized image ready for storage.
type Result struct {
	Data        []byte
	Width       int
	Height      int
	ContentType string
}

// Normalize decodes r, applies the EXIF orientation, fits it into
// MaxSide x MaxSide and encodes WebP. Metadata is not carried over.
func Normalize(r io.Reader, mime string) (*Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxInputBytes {
		return nil, ErrTooLarge
	}

	throttle <- struct{}{}
	active := atomic.AddInt32(&activeProcesses, 1)
	defer func() {
		atomic.AddInt32(&activeProcesses, -1)
		<-throttle
	}()
	log.Debugf("[ImageProcessor] Normalizing %s (%d bytes, active %d)", mime, len(data), active)

	img, err := decode(data, mime)
	if err != nil {
		return nil, err
	}
	img = ApplyOrientation(img, Orientation(data))

	b := img.Bounds()
	if b.Dx() > MaxSide || b.Dy() > MaxSide {
		img = imaging.Fit(img, MaxSide, MaxSide, imaging.Lanczos)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, Quality)
	if err != nil {
		return nil, fmt.Errorf("error creating encoder options: %w", err)
	}
	var out bytes.Buffer
	if err := webp.Encode(&out, img, options); err != nil {
		return nil, fmt.Errorf("error encoding WebP image: %w", err)
	}

	b = img.Bounds()
	return &Result{Data: out.Bytes(), Width: b.Dx(), Height: b.Dy(), ContentType: "image/webp"}, nil
}

func decode(data []byte, mime string) (image.Image, error) {
	if mime == "image/webp" {
		img, err := webp.Decode(bytes.NewReader(data), &decoder.Options{})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return img, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return img, nil
}
