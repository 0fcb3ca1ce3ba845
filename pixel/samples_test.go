package pixel

import (
	"encoding/binary"

	. "github.com/janelia-flyem/go/gocheck"
)

type SampleSuite struct{}

var _ = Suite(&SampleSuite{})

func (s *SampleSuite) TestSwapBytes(c *C) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	c.Assert(SwapBytes(data, 2), IsNil)
	c.Assert(data, DeepEquals, []byte{2, 1, 4, 3, 6, 5, 8, 7})
	c.Assert(SwapBytes(data, 4), IsNil)
	c.Assert(data, DeepEquals, []byte{3, 4, 1, 2, 7, 8, 5, 6})

	single := []byte{9, 8, 7}
	c.Assert(SwapBytes(single, 1), IsNil)
	c.Assert(single, DeepEquals, []byte{9, 8, 7})
	c.Assert(SwapBytes(single, 2), NotNil)
}

func (s *SampleSuite) TestSamples(c *C) {
	values := []float64{0, 1, -3, 127}
	for _, t := range []PixelType{Int8, Int16, Int32, Float} {
		for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
			data := make([]byte, len(values)*t.BytesPerPixel())
			for i, v := range values {
				PutSample(data, i, t, order, v)
			}
			decoded, err := Samples(data, t, order)
			c.Assert(err, IsNil)
			c.Assert(decoded, DeepEquals, values)
		}
	}

	data := []byte{0x01, 0x02}
	le, err := Samples(data, Uint16, ByteOrder(false))
	c.Assert(err, IsNil)
	be, err := Samples(data, Uint16, ByteOrder(true))
	c.Assert(err, IsNil)
	c.Assert(le, DeepEquals, []float64{0x0201})
	c.Assert(be, DeepEquals, []float64{0x0102})

	_, err = Samples(data, Invalid, binary.LittleEndian)
	c.Assert(err, NotNil)
	_, err = Samples([]byte{1, 2, 3}, Uint16, binary.LittleEndian)
	c.Assert(err, NotNil)
}
