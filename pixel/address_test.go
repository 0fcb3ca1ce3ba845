package pixel

import (
	"errors"

	. "github.com/janelia-flyem/go/gocheck"
)

type AddressSuite struct {
	dims Dims
}

var _ = Suite(&AddressSuite{})

func (s *AddressSuite) SetUpSuite(c *C) {
	s.dims = Dims{X: 4, Y: 3, Z: 5, C: 2, T: 3, BytesPerPixel: 2}
}

func (s *AddressSuite) TestDims(c *C) {
	c.Assert(s.dims.Validate(), IsNil)
	c.Assert(s.dims.PlaneBytes(), Equals, int64(24))
	c.Assert(s.dims.StackBytes(), Equals, int64(120))
	c.Assert(s.dims.TotalBytes(), Equals, int64(720))
	c.Assert(s.dims.NumPlanes(), Equals, 30)
	c.Assert(s.dims.PlaneIndex(0, 0, 0), Equals, 0)
	c.Assert(s.dims.PlaneIndex(4, 1, 2), Equals, 29)

	parsed, err := ParseDims(s.dims.Field())
	c.Assert(err, IsNil)
	c.Assert(parsed, Equals, s.dims)

	bad := s.dims
	bad.Z = 0
	c.Assert(bad.Validate(), NotNil)
	_, err = ParseDims("1,2,3")
	c.Assert(err, NotNil)
}

func (s *AddressSuite) TestBounds(c *C) {
	whole := Whole{}.Bounds(s.dims)
	c.Assert(whole, Equals, ROI{X1: 3, Y1: 2, Z1: 4, C1: 1, T1: 2})
	c.Assert(NumBytes(Whole{}, s.dims), Equals, s.dims.TotalBytes())
	c.Assert(NumBytes(Stack{C: 1, T: 2}, s.dims), Equals, s.dims.StackBytes())
	c.Assert(NumBytes(Plane{Z: 1, C: 1, T: 2}, s.dims), Equals, s.dims.PlaneBytes())
	c.Assert(NumBytes(Rows{Y: 1, N: 2, Z: 0, C: 0, T: 0}, s.dims), Equals, int64(2*4*2))

	roi := ROI{1, 1, 0, 0, 0, 2, 2, 0, 0, 0}
	c.Assert(roi.NumPixels(), Equals, int64(4))
	c.Assert(roi.Validate(s.dims), IsNil)
}

func (s *AddressSuite) TestValidate(c *C) {
	bad := []Address{
		Plane{Z: 5, C: 0, T: 0},
		Plane{Z: -1, C: 0, T: 0},
		Stack{C: 2, T: 0},
		Rows{Y: 2, N: 2},
		Rows{Y: 0, N: 0},
		ROI{X0: 2, X1: 1},
		ROI{X1: 4},
		ROI{T0: -1},
	}
	for _, addr := range bad {
		err := addr.Validate(s.dims)
		c.Assert(err, NotNil, Commentf("%s should be invalid", addr))
		c.Assert(errors.Is(err, ErrBadAddress), Equals, true)
	}

	// Without known dims only ordering and negativity are checked.
	c.Assert(Plane{Z: 100}.Validate(Dims{}), IsNil)
	c.Assert(ROI{X0: 2, X1: 1}.Validate(Dims{}), NotNil)
}

func (s *AddressSuite) TestWireRoundTrip(c *C) {
	addrs := []Address{
		Whole{},
		Stack{C: 1, T: 2},
		Plane{Z: 3, C: 1, T: 0},
		Rows{Y: 1, N: 2, Z: 3, C: 0, T: 1},
		ROI{0, 1, 2, 0, 1, 3, 2, 4, 1, 2},
	}
	for _, addr := range addrs {
		fields := addr.AppendFields(nil)
		parsed, err := ParseAddress(addr.Suffix(), func(name string) string {
			v, _ := fields.Get(name)
			return v
		})
		c.Assert(err, IsNil)
		c.Assert(parsed, Equals, addr)
	}
	_, err := ParseAddress("Plane", func(string) string { return "x" })
	c.Assert(errors.Is(err, ErrBadAddress), Equals, true)
}
