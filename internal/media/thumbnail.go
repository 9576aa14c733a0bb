package media

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"
)

// DefaultMaxDimension is the longer-edge size of generated thumbnails.
const DefaultMaxDimension = 640

// DecodeError means the source image could not be opened or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Path, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means the thumbnail could not be written.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// Thumbnailer downscales images so the longer edge equals a target size,
// preserving aspect ratio.
type Thumbnailer struct {
	maxDim       int
	allowUpscale bool
	logger       *slog.Logger
}

type ThumbnailerConfig struct {
	MaxDimension int  // default DefaultMaxDimension
	AllowUpscale bool // scale up sources already smaller than MaxDimension
	Logger       *slog.Logger
}

func NewThumbnailer(cfg ThumbnailerConfig) *Thumbnailer {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Thumbnailer{
		maxDim:       cfg.MaxDimension,
		allowUpscale: cfg.AllowUpscale,
		logger:       cfg.Logger,
	}
}

// Create reads src, scales it so max(width, height) == MaxDimension, and
// writes a JPEG to dest. Sources already within the target keep their size
// unless AllowUpscale is set. dest is placed atomically.
func (t *Thumbnailer) Create(src, dest string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return &DecodeError{Path: src, Err: err}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longer := max(w, h)

	if longer != t.maxDim && (longer > t.maxDim || t.allowUpscale) {
		// Pin the longer edge to the target exactly; imaging keeps the
		// aspect ratio when the other dimension is zero.
		if w >= h {
			img = imaging.Resize(img, t.maxDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, t.maxDim, imaging.Lanczos)
		}
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &EncodeError{Path: dest, Err: err}
	}
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		f.Close()
		os.Remove(tmp)
		return &EncodeError{Path: dest, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &EncodeError{Path: dest, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return &EncodeError{Path: dest, Err: err}
	}

	out := img.Bounds()
	t.logger.Debug("thumbnail written", "src", src, "dest", dest,
		"width", out.Dx(), "height", out.Dy())
	return nil
}
