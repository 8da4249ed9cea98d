// Package meshio reads triangle meshes from Stanford PLY files.
package meshio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/mitchellh/go-homedir"
)

var (
	ErrNotPLY      = errors.New("meshio: not a ply file")
	ErrBadHeader   = errors.New("meshio: bad ply header")
	ErrBadBody     = errors.New("meshio: bad ply body")
	ErrBadIndex    = errors.New("meshio: face index out of range")
	ErrUnsupported = errors.New("meshio: unsupported ply format")
)

// maxFaceVertices bounds the polygon size accepted in a face list.
const maxFaceVertices = 1024

// Mesh is an indexed triangle mesh. Polygons are fan triangulated on load.
type Mesh struct {
	Vertices []mgl64.Vec3
	Faces    [][3]uint32
}

// Triangles expands the faces into vertex triples.
func (m *Mesh) Triangles() [][3]mgl64.Vec3 {
	out := make([][3]mgl64.Vec3, len(m.Faces))
	for i, f := range m.Faces {
		out[i] = [3]mgl64.Vec3{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]}
	}
	return out
}

// Load reads the PLY file at path. A leading ~ is expanded.
func Load(path string) (*Mesh, error) {
	expanded, err := homedir.Expand(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", expanded, err)
	}
	return m, nil
}

type scalar uint8

const (
	scalarInvalid scalar = iota
	scalarInt8
	scalarUint8
	scalarInt16
	scalarUint16
	scalarInt32
	scalarUint32
	scalarFloat32
	scalarFloat64
)

func parseScalar(s string) scalar {
	switch s {
	case "char", "int8":
		return scalarInt8
	case "uchar", "uint8":
		return scalarUint8
	case "short", "int16":
		return scalarInt16
	case "ushort", "uint16":
		return scalarUint16
	case "int", "int32":
		return scalarInt32
	case "uint", "uint32":
		return scalarUint32
	case "float", "float32":
		return scalarFloat32
	case "double", "float64":
		return scalarFloat64
	}
	return scalarInvalid
}

func (s scalar) size() int {
	switch s {
	case scalarInt8, scalarUint8:
		return 1
	case scalarInt16, scalarUint16:
		return 2
	case scalarInt32, scalarUint32, scalarFloat32:
		return 4
	case scalarFloat64:
		return 8
	}
	return 0
}

type property struct {
	name  string
	typ   scalar
	count scalar // set for list properties
}

type element struct {
	name  string
	count int
	props []property
}

type header struct {
	order    binary.ByteOrder // nil for ascii
	elements []element
}

// Parse decodes an ascii, binary_little_endian or binary_big_endian PLY
// stream. Only vertex positions and face index lists are kept.
func Parse(r io.Reader) (*Mesh, error) {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	var values valueReader
	if h.order == nil {
		sc := bufio.NewScanner(br)
		sc.Split(bufio.ScanWords)
		values = &asciiValues{sc: sc}
	} else {
		values = &binaryValues{r: br, order: h.order}
	}

	m := &Mesh{}
	for _, el := range h.elements {
		if err := readElement(el, values, m); err != nil {
			return nil, err
		}
	}
	for _, f := range m.Faces {
		for _, idx := range f {
			if int(idx) >= len(m.Vertices) {
				return nil, fmt.Errorf("%w: %d of %d", ErrBadIndex, idx, len(m.Vertices))
			}
		}
	}
	return m, nil
}

func readHeader(br *bufio.Reader) (*header, error) {
	line, err := br.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ply" {
		return nil, ErrNotPLY
	}

	h := &header{}
	formatSeen := false
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: missing end_header", ErrBadHeader)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
		case "format":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: %q", ErrBadHeader, strings.TrimSpace(line))
			}
			switch fields[1] {
			case "ascii":
			case "binary_little_endian":
				h.order = binary.LittleEndian
			case "binary_big_endian":
				h.order = binary.BigEndian
			default:
				return nil, fmt.Errorf("%w: format %s", ErrUnsupported, fields[1])
			}
			formatSeen = true
		case "element":
			if len(fields) != 3 {
				return nil, fmt.Errorf("%w: %q", ErrBadHeader, strings.TrimSpace(line))
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: element count %q", ErrBadHeader, fields[2])
			}
			h.elements = append(h.elements, element{name: fields[1], count: n})
		case "property":
			if len(h.elements) == 0 {
				return nil, fmt.Errorf("%w: property before element", ErrBadHeader)
			}
			p, err := parseProperty(fields[1:])
			if err != nil {
				return nil, err
			}
			el := &h.elements[len(h.elements)-1]
			el.props = append(el.props, p)
		case "end_header":
			if !formatSeen {
				return nil, fmt.Errorf("%w: missing format", ErrBadHeader)
			}
			return h, nil
		default:
			return nil, fmt.Errorf("%w: keyword %q", ErrBadHeader, fields[0])
		}
	}
}

func parseProperty(fields []string) (property, error) {
	if len(fields) == 4 && fields[0] == "list" {
		p := property{count: parseScalar(fields[1]), typ: parseScalar(fields[2]), name: fields[3]}
		if p.count == scalarInvalid || p.typ == scalarInvalid {
			return p, fmt.Errorf("%w: list %s %s", ErrBadHeader, fields[1], fields[2])
		}
		return p, nil
	}
	if len(fields) == 2 {
		p := property{typ: parseScalar(fields[0]), name: fields[1]}
		if p.typ == scalarInvalid {
			return p, fmt.Errorf("%w: type %s", ErrBadHeader, fields[0])
		}
		return p, nil
	}
	return property{}, fmt.Errorf("%w: property %v", ErrBadHeader, fields)
}

func readElement(el element, values valueReader, m *Mesh) error {
	xi, yi, zi, fi := -1, -1, -1, -1
	for i, p := range el.props {
		switch {
		case p.count == scalarInvalid && p.name == "x":
			xi = i
		case p.count == scalarInvalid && p.name == "y":
			yi = i
		case p.count == scalarInvalid && p.name == "z":
			zi = i
		case p.count != scalarInvalid && (p.name == "vertex_indices" || p.name == "vertex_index"):
			fi = i
		}
	}
	isVertex := el.name == "vertex" && xi >= 0 && yi >= 0 && zi >= 0
	isFace := el.name == "face" && fi >= 0

	var (
		row  = make([]float64, len(el.props))
		poly []uint32
	)
	for n := 0; n < el.count; n++ {
		for i, p := range el.props {
			if p.count == scalarInvalid {
				v, err := values.next(p.typ)
				if err != nil {
					return err
				}
				row[i] = v
				continue
			}
			c, err := values.next(p.count)
			if err != nil {
				return err
			}
			if c < 0 || c > maxFaceVertices || c != math.Trunc(c) {
				return fmt.Errorf("%w: list length %g", ErrBadBody, c)
			}
			poly = poly[:0]
			for k := 0; k < int(c); k++ {
				v, err := values.next(p.typ)
				if err != nil {
					return err
				}
				if i == fi {
					if v < 0 || v != math.Trunc(v) || v > math.MaxUint32 {
						return fmt.Errorf("%w: %g", ErrBadIndex, v)
					}
					poly = append(poly, uint32(v))
				}
			}
		}
		switch {
		case isVertex:
			m.Vertices = append(m.Vertices, mgl64.Vec3{row[xi], row[yi], row[zi]})
		case isFace:
			for k := 1; k+1 < len(poly); k++ {
				m.Faces = append(m.Faces, [3]uint32{poly[0], poly[k], poly[k+1]})
			}
		}
	}
	return nil
}

type valueReader interface {
	next(t scalar) (float64, error)
}

type asciiValues struct {
	sc *bufio.Scanner
}

func (a *asciiValues) next(scalar) (float64, error) {
	if !a.sc.Scan() {
		if err := a.sc.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: unexpected end of data", ErrBadBody)
	}
	v, err := strconv.ParseFloat(a.sc.Text(), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadBody, a.sc.Text())
	}
	return v, nil
}

type binaryValues struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (b *binaryValues) next(t scalar) (float64, error) {
	raw := b.buf[:t.size()]
	if _, err := io.ReadFull(b.r, raw); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	switch t {
	case scalarInt8:
		return float64(int8(raw[0])), nil
	case scalarUint8:
		return float64(raw[0]), nil
	case scalarInt16:
		return float64(int16(b.order.Uint16(raw))), nil
	case scalarUint16:
		return float64(b.order.Uint16(raw)), nil
	case scalarInt32:
		return float64(int32(b.order.Uint32(raw))), nil
	case scalarUint32:
		return float64(b.order.Uint32(raw)), nil
	case scalarFloat32:
		return float64(math.Float32frombits(b.order.Uint32(raw))), nil
	case scalarFloat64:
		return math.Float64frombits(b.order.Uint64(raw)), nil
	}
	return 0, fmt.Errorf("%w: scalar %d", ErrUnsupported, t)
}
