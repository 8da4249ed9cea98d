// Package imageout encodes rendered framebuffers to disk.
package imageout

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/nslaift/nslaift/internal/backend"
)

var (
	ErrUnknownFormat = errors.New("imageout: unknown format")
	ErrEmptyFrame    = errors.New("imageout: empty frame")
)

// Frame is one camera's output of a render call.
type Frame struct {
	Camera  string
	Counter uint64
	Buffer  *backend.Framebuffer
}

// Sink consumes rendered frames.
type Sink interface {
	WriteFrame(f Frame) error
}

type Format string

const (
	FormatTIFF Format = "tiff"
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tif", "tiff":
		return FormatTIFF, nil
	case "png":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatPNG:
		return png.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ToImage converts a linear float framebuffer to a 16-bit image, clamping
// each channel to [0, 1].
func ToImage(fb *backend.Framebuffer) *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, fb.Width, fb.Height))
	for y := 0; y < fb.Height; y++ {
		for x := 0; x < fb.Width; x++ {
			p := fb.At(x, y)
			img.SetRGBA64(x, y, color.RGBA64{
				R: to16(p[0]),
				G: to16(p[1]),
				B: to16(p[2]),
				A: to16(p[3]),
			})
		}
	}
	return img
}

func to16(v float32) uint16 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return math.MaxUint16
	}
	return uint16(math.Round(float64(v) * math.MaxUint16))
}

// FileSink writes <dir>/<camera>_<counter>.<ext> for every frame.
type FileSink struct {
	dir    string
	format Format

	mu   sync.Mutex
	last string
}

// NewFileSink creates dir if needed. A leading ~ is expanded to the
// user's home directory.
func NewFileSink(dir string, format Format) (*FileSink, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expand output dir: %w", err)
	}
	if expanded == "" {
		expanded = "."
	}
	if err = os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if _, err = ParseFormat(string(format)); err != nil {
		return nil, err
	}
	return &FileSink{dir: expanded, format: format}, nil
}

func (s *FileSink) Dir() string { return s.dir }

// Path returns the file a frame would be written to.
func (s *FileSink) Path(camera string, counter uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%04d.%s", sanitize(camera), counter, s.format))
}

// Last returns the path of the most recently written file.
func (s *FileSink) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *FileSink) WriteFrame(f Frame) (err error) {
	if f.Buffer == nil || f.Buffer.Width == 0 || f.Buffer.Height == 0 {
		return ErrEmptyFrame
	}
	path := s.Path(f.Camera, f.Counter)
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err = Encode(out, ToImage(f.Buffer), s.format); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	s.mu.Lock()
	s.last = path
	s.mu.Unlock()
	return nil
}

func sanitize(name string) string {
	if name == "" {
		return "camera"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}

// Discard drops every frame.
var Discard Sink = discard{}

type discard struct{}

func (discard) WriteFrame(Frame) error { return nil }

// Memory keeps frames in memory.
type Memory struct {
	mu     sync.Mutex
	frames []Frame
}

func (m *Memory) WriteFrame(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
	return nil
}

func (m *Memory) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.frames))
	copy(out, m.frames)
	return out
}
