/*
	This file handles byte order and decoding of raw samples.
*/

package pixel

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ByteOrder returns the binary.ByteOrder for the wire BigEndian flag.
func ByteOrder(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// SwapBytes reverses, in place, the byte order of each width-byte sample.
// Width 1 is a no-op.
func SwapBytes(data []byte, width int) error {
	if width <= 1 {
		return nil
	}
	if len(data)%width != 0 {
		return fmt.Errorf("%d bytes is not a multiple of sample width %d", len(data), width)
	}
	for i := 0; i < len(data); i += width {
		for lo, hi := i, i+width-1; lo < hi; lo, hi = lo+1, hi-1 {
			data[lo], data[hi] = data[hi], data[lo]
		}
	}
	return nil
}

// Samples decodes raw data of the given pixel type into float64 values.
func Samples(data []byte, t PixelType, order binary.ByteOrder) ([]float64, error) {
	width := t.BytesPerPixel()
	if width == 0 {
		return nil, fmt.Errorf("%w: cannot decode %s samples", ErrInvalidFormat, t)
	}
	if len(data)%width != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of %s sample width", len(data), t)
	}
	n := len(data) / width
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		values[i] = sample(data[i*width:], t, order)
	}
	return values, nil
}

// PutSample encodes v as the i-th sample of data.
func PutSample(data []byte, i int, t PixelType, order binary.ByteOrder, v float64) {
	b := data[i*t.BytesPerPixel():]
	switch t {
	case Uint8:
		b[0] = uint8(v)
	case Int8:
		b[0] = uint8(int8(v))
	case Uint16:
		order.PutUint16(b, uint16(v))
	case Int16:
		order.PutUint16(b, uint16(int16(v)))
	case Uint32:
		order.PutUint32(b, uint32(v))
	case Int32:
		order.PutUint32(b, uint32(int32(v)))
	case Float:
		order.PutUint32(b, math.Float32bits(float32(v)))
	}
}

func sample(b []byte, t PixelType, order binary.ByteOrder) float64 {
	switch t {
	case Uint8:
		return float64(b[0])
	case Int8:
		return float64(int8(b[0]))
	case Uint16:
		return float64(order.Uint16(b))
	case Int16:
		return float64(int16(order.Uint16(b)))
	case Uint32:
		return float64(order.Uint32(b))
	case Int32:
		return float64(int32(order.Uint32(b)))
	case Float:
		return float64(math.Float32frombits(order.Uint32(b)))
	}
	return 0
}

// Range returns the representable range of a pixel type, used to scale
// samples for display.  Floats report the float32 extremes.
func Range(t PixelType) (min, max float64) {
	switch t {
	case Uint8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float:
		return -math.MaxFloat32, math.MaxFloat32
	}
	return 0, 0
}
