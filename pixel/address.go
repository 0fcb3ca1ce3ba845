package pixel

import (
	"fmt"
	"strconv"
)

// Field is one named request parameter.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered list of request parameters.
type Fields []Field

func (f Fields) Add(name, value string) Fields {
	return append(f, Field{name, value})
}

func (f Fields) AddInt(name string, v int64) Fields {
	return append(f, Field{name, strconv.FormatInt(v, 10)})
}

func (f Fields) AddBool(name string, v bool) Fields {
	if v {
		return append(f, Field{name, "1"})
	}
	return append(f, Field{name, "0"})
}

// Get returns the value of the last field with the given name.
func (f Fields) Get(name string) (string, bool) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i].Name == name {
			return f[i].Value, true
		}
	}
	return "", false
}

// Address selects a sub-region of a 5-d pixel array.
type Address interface {
	// Suffix is appended to Get, Set or Convert to name the wire method.
	Suffix() string

	// AppendFields adds the address's wire parameters.
	AppendFields(f Fields) Fields

	// Bounds returns the address as an inclusive ROI within the given dims.
	Bounds(d Dims) ROI

	// Validate checks the address for ordering and, if d is valid, bounds.
	Validate(d Dims) error

	String() string
}

// NumBytes returns the number of bytes addressed within an array of dims d.
func NumBytes(a Address, d Dims) int64 {
	return a.Bounds(d).NumPixels() * int64(d.BytesPerPixel)
}

// Whole addresses an entire pixel array.
type Whole struct{}

func (Whole) Suffix() string               { return "Pixels" }
func (Whole) AppendFields(f Fields) Fields { return f }
func (Whole) Validate(d Dims) error        { return nil }
func (Whole) String() string               { return "whole" }
func (Whole) Bounds(d Dims) ROI {
	return ROI{X1: d.X - 1, Y1: d.Y - 1, Z1: d.Z - 1, C1: d.C - 1, T1: d.T - 1}
}

// Stack addresses every Z plane at a fixed channel and time.
type Stack struct {
	C, T int
}

func (s Stack) Suffix() string { return "Stack" }

func (s Stack) AppendFields(f Fields) Fields {
	return f.AddInt("theC", int64(s.C)).AddInt("theT", int64(s.T))
}

func (s Stack) Bounds(d Dims) ROI {
	return ROI{X1: d.X - 1, Y1: d.Y - 1, Z1: d.Z - 1, C0: s.C, C1: s.C, T0: s.T, T1: s.T}
}

func (s Stack) Validate(d Dims) error {
	if err := checkCoord("c", s.C, d.C); err != nil {
		return err
	}
	return checkCoord("t", s.T, d.T)
}

func (s Stack) String() string {
	return fmt.Sprintf("stack (c=%d, t=%d)", s.C, s.T)
}

// Plane addresses a single XY plane.
type Plane struct {
	Z, C, T int
}

func (p Plane) Suffix() string { return "Plane" }

func (p Plane) AppendFields(f Fields) Fields {
	return f.AddInt("theZ", int64(p.Z)).AddInt("theC", int64(p.C)).AddInt("theT", int64(p.T))
}

func (p Plane) Bounds(d Dims) ROI {
	return ROI{X1: d.X - 1, Y1: d.Y - 1, Z0: p.Z, Z1: p.Z, C0: p.C, C1: p.C, T0: p.T, T1: p.T}
}

func (p Plane) Validate(d Dims) error {
	if err := checkCoord("z", p.Z, d.Z); err != nil {
		return err
	}
	if err := checkCoord("c", p.C, d.C); err != nil {
		return err
	}
	return checkCoord("t", p.T, d.T)
}

func (p Plane) String() string {
	return fmt.Sprintf("plane (z=%d, c=%d, t=%d)", p.Z, p.C, p.T)
}

// Rows addresses N full rows starting at row Y within one plane.  It is only
// used for conversions from uploaded files.
type Rows struct {
	Y, N    int
	Z, C, T int
}

func (r Rows) Suffix() string { return "Rows" }

func (r Rows) AppendFields(f Fields) Fields {
	f = f.AddInt("theY", int64(r.Y)).AddInt("nRows", int64(r.N))
	return Plane{r.Z, r.C, r.T}.AppendFields(f)
}

func (r Rows) Bounds(d Dims) ROI {
	return ROI{X1: d.X - 1, Y0: r.Y, Y1: r.Y + r.N - 1, Z0: r.Z, Z1: r.Z, C0: r.C, C1: r.C, T0: r.T, T1: r.T}
}

func (r Rows) Validate(d Dims) error {
	if r.N <= 0 {
		return fmt.Errorf("%w: number of rows must be positive, got %d", ErrBadAddress, r.N)
	}
	if err := checkCoord("y", r.Y, d.Y); err != nil {
		return err
	}
	if err := checkCoord("y", r.Y+r.N-1, d.Y); err != nil {
		return err
	}
	return Plane{r.Z, r.C, r.T}.Validate(d)
}

func (r Rows) String() string {
	return fmt.Sprintf("%d rows from y=%d (z=%d, c=%d, t=%d)", r.N, r.Y, r.Z, r.C, r.T)
}

// ROI is an inclusive hyper-rectangle [X0..X1]x[Y0..Y1]x[Z0..Z1]x[C0..C1]x[T0..T1].
type ROI struct {
	X0, Y0, Z0, C0, T0 int
	X1, Y1, Z1, C1, T1 int
}

func (r ROI) Suffix() string { return "ROI" }

func (r ROI) AppendFields(f Fields) Fields {
	return f.Add("ROI", r.Field())
}

func (r ROI) Bounds(d Dims) ROI { return r }

// Field returns the wire form x0,y0,z0,c0,t0,x1,y1,z1,c1,t1.
func (r ROI) Field() string {
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d,%d,%d",
		r.X0, r.Y0, r.Z0, r.C0, r.T0, r.X1, r.Y1, r.Z1, r.C1, r.T1)
}

func (r ROI) Validate(d Dims) error {
	lo := [5]int{r.X0, r.Y0, r.Z0, r.C0, r.T0}
	hi := [5]int{r.X1, r.Y1, r.Z1, r.C1, r.T1}
	size := [5]int{d.X, d.Y, d.Z, d.C, d.T}
	for i, axis := range [5]string{"x", "y", "z", "c", "t"} {
		if lo[i] > hi[i] {
			return fmt.Errorf("%w: %s0 (%d) > %s1 (%d)", ErrBadAddress, axis, lo[i], axis, hi[i])
		}
		if err := checkCoord(axis, lo[i], size[i]); err != nil {
			return err
		}
		if err := checkCoord(axis, hi[i], size[i]); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the extent of the ROI along each axis.
func (r ROI) Size() (x, y, z, c, t int) {
	return r.X1 - r.X0 + 1, r.Y1 - r.Y0 + 1, r.Z1 - r.Z0 + 1, r.C1 - r.C0 + 1, r.T1 - r.T0 + 1
}

func (r ROI) NumPixels() int64 {
	x, y, z, c, t := r.Size()
	return int64(x) * int64(y) * int64(z) * int64(c) * int64(t)
}

func (r ROI) String() string {
	return fmt.Sprintf("roi [%d..%d]x[%d..%d]x[%d..%d]x[%d..%d]x[%d..%d]",
		r.X0, r.X1, r.Y0, r.Y1, r.Z0, r.Z1, r.C0, r.C1, r.T0, r.T1)
}

// checkCoord verifies 0 <= v < size.  A non-positive size means the extent is
// unknown and only the lower bound is checked.
func checkCoord(axis string, v, size int) error {
	if v < 0 {
		return fmt.Errorf("%w: %s coordinate %d is negative", ErrBadAddress, axis, v)
	}
	if size > 0 && v >= size {
		return fmt.Errorf("%w: %s coordinate %d outside [0, %d]", ErrBadAddress, axis, v, size-1)
	}
	return nil
}

// ParseAddress reconstructs an address from its wire suffix and parameters.
func ParseAddress(suffix string, get func(name string) string) (Address, error) {
	atoi := func(name string) (int, error) {
		s := get(name)
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: parameter %s=%q is not an integer", ErrBadAddress, name, s)
		}
		return v, nil
	}
	ints := func(names ...string) ([]int, error) {
		v := make([]int, len(names))
		for i, name := range names {
			var err error
			if v[i], err = atoi(name); err != nil {
				return nil, err
			}
		}
		return v, nil
	}
	switch suffix {
	case "Pixels":
		return Whole{}, nil
	case "Stack":
		v, err := ints("theC", "theT")
		if err != nil {
			return nil, err
		}
		return Stack{C: v[0], T: v[1]}, nil
	case "Plane":
		v, err := ints("theZ", "theC", "theT")
		if err != nil {
			return nil, err
		}
		return Plane{Z: v[0], C: v[1], T: v[2]}, nil
	case "Rows":
		v, err := ints("theY", "nRows", "theZ", "theC", "theT")
		if err != nil {
			return nil, err
		}
		return Rows{Y: v[0], N: v[1], Z: v[2], C: v[3], T: v[4]}, nil
	case "ROI":
		v, err := parseInts(get("ROI"), 10)
		if err != nil {
			return nil, fmt.Errorf("%w: ROI: %v", ErrBadAddress, err)
		}
		return ROI{v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7], v[8], v[9]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown address kind %q", ErrBadAddress, suffix)
	}
}
