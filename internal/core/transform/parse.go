package transform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultDelimiter separates numeric tokens in action parameters.
const DefaultDelimiter = ","

var (
	ErrTokenCount = errors.New("wrong number of tokens")
	ErrNotNumeric = errors.New("token is not numeric")
)

// ParseFloats splits s on delim and parses exactly n floats. Surrounding
// whitespace around each token is ignored.
func ParseFloats(s, delim string, n int) ([]float64, error) {
	if delim == "" {
		delim = DefaultDelimiter
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: want %d, got 0", ErrTokenCount, n)
	}
	tokens := strings.Split(s, delim)
	if len(tokens) != n {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrTokenCount, n, len(tokens))
	}
	out := make([]float64, n)
	for i, tok := range tokens {
		v, err := ParseFloat(tok)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ParseFloat parses a single trimmed float token.
func ParseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return v, nil
}

// ParseInt parses a single trimmed integer token.
func ParseInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return v, nil
}

// ParseVec3 parses "x<delim>y<delim>z".
func ParseVec3(s, delim string) (mgl64.Vec3, error) {
	v, err := ParseFloats(s, delim, 3)
	if err != nil {
		return mgl64.Vec3{}, err
	}
	return mgl64.Vec3{v[0], v[1], v[2]}, nil
}

// ParseMatrix parses sixteen row-major values. On failure it returns the
// identity matrix together with the error.
func ParseMatrix(s, delim string) (mgl64.Mat4, error) {
	v, err := ParseFloats(s, delim, 16)
	if err != nil {
		return mgl64.Ident4(), err
	}
	var rm [16]float64
	copy(rm[:], v)
	return FromRowMajor(rm), nil
}

// ParseResolution parses "WxH" (or "W,H") into two positive integers.
func ParseResolution(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	sep := "x"
	switch {
	case strings.Contains(s, ","):
		sep = ","
	case strings.Contains(s, "X"):
		sep = "X"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: resolution %q", ErrTokenCount, s)
	}
	w, err := ParseInt(parts[0])
	if err != nil {
		return 0, 0, err
	}
	h, err := ParseInt(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("resolution must be positive: %dx%d", w, h)
	}
	return w, h, nil
}

// ParseBool accepts integers (non-zero is true) as well as true/false.
func ParseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i != 0, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return b, nil
}
