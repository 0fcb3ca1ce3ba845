package pixel

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// PixelsID is the opaque pixel-server identifier of one pixel array.
type PixelsID uint64

// FileID is the pixel-server identifier of one uploaded file.
type FileID uint64

func (id PixelsID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id FileID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Dims is the extent of a 5-d pixel array along X, Y, Z, C (channel) and
// T (time) plus the width of one sample in bytes.
type Dims struct {
	X, Y, Z, C, T int
	BytesPerPixel int
}

// Validate returns an error if any size is not a positive integer.
func (d Dims) Validate() error {
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 || d.C <= 0 || d.T <= 0 {
		return fmt.Errorf("dimensions must be positive: %s", d)
	}
	if d.BytesPerPixel <= 0 {
		return fmt.Errorf("bytes per pixel must be positive, got %d", d.BytesPerPixel)
	}
	return nil
}

func (d Dims) PlanePixels() int64 {
	return int64(d.X) * int64(d.Y)
}

func (d Dims) PlaneBytes() int64 {
	return d.PlanePixels() * int64(d.BytesPerPixel)
}

func (d Dims) StackBytes() int64 {
	return d.PlaneBytes() * int64(d.Z)
}

func (d Dims) TotalBytes() int64 {
	return d.StackBytes() * int64(d.C) * int64(d.T)
}

// NumPlanes returns the number of XY planes in the array.
func (d Dims) NumPlanes() int {
	return d.Z * d.C * d.T
}

// PlaneIndex returns the ordinal of a plane when planes are ordered with Z
// varying fastest, then C, then T.
func (d Dims) PlaneIndex(z, c, t int) int {
	return (t*d.C+c)*d.Z + z
}

// Field returns the wire form X,Y,Z,C,T,B.
func (d Dims) Field() string {
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", d.X, d.Y, d.Z, d.C, d.T, d.BytesPerPixel)
}

func (d Dims) String() string {
	return fmt.Sprintf("%d x %d x %d x %d x %d @ %d bytes", d.X, d.Y, d.Z, d.C, d.T, d.BytesPerPixel)
}

// ParseDims parses the X,Y,Z,C,T,B wire form.
func ParseDims(s string) (Dims, error) {
	v, err := parseInts(s, 6)
	if err != nil {
		return Dims{}, fmt.Errorf("bad dims %q: %v", s, err)
	}
	return Dims{X: v[0], Y: v[1], Z: v[2], C: v[3], T: v[4], BytesPerPixel: v[5]}, nil
}

// Info describes a pixel array as reported by the pixel server.
type Info struct {
	Dims
	Signed bool
	Float  bool
	Sealed bool
}

// Type classifies the array's encoding.
func (i Info) Type() PixelType {
	return Classify(i.BytesPerPixel, i.Signed, i.Float)
}

func (i Info) String() string {
	state := "writable"
	if i.Sealed {
		state = "sealed"
	}
	return fmt.Sprintf("%s (%s, %s)", i.Dims, i.Type(), state)
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma-separated integers, got %d", n, len(parts))
	}
	v := make([]int, n)
	for i, p := range parts {
		x, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		v[i] = x
	}
	return v, nil
}
