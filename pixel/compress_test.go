package pixel

import (
	. "github.com/janelia-flyem/go/gocheck"
)

type CompressSuite struct{}

var _ = Suite(&CompressSuite{})

func (s *CompressSuite) TestSerialization(c *C) {
	plane := make([]byte, 4096)
	for i := range plane {
		plane[i] = byte(i / 16)
	}
	for _, compression := range []Compression{Uncompressed, Snappy, Zstd} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			ser, err := SerializeData(plane, compression, checksum)
			c.Assert(err, IsNil)
			if compression != Uncompressed {
				c.Check(len(ser) < len(plane), Equals, true, Commentf("%s did not compress", compression))
			}

			data, err := DeserializeData(ser)
			c.Assert(err, IsNil)
			c.Assert(data, DeepEquals, plane)

			if checksum == CRC32 {
				ser[len(ser)-1] ^= 0x04 // Flip a bit
				_, err = DeserializeData(ser)
				c.Assert(err, NotNil)
			}
		}
	}
}

func (s *CompressSuite) TestParseCompression(c *C) {
	for _, compression := range []Compression{Uncompressed, Snappy, Zstd} {
		parsed, err := ParseCompression(compression.String())
		c.Assert(err, IsNil)
		c.Assert(parsed, Equals, compression)
	}
	_, err := ParseCompression("lz4")
	c.Assert(err, NotNil)
}
