package pixel

import (
	"encoding/json"
	"fmt"
)

// PixelType is the canonical tag for a physical pixel encoding.
type PixelType uint8

const (
	Invalid PixelType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float
)

var typeNames = map[PixelType]string{
	Invalid: "invalid",
	Uint8:   "uint8",
	Int8:    "int8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Float:   "float",
}

// Classify maps a byte width, signedness and float-ness onto a PixelType.
// Widths other than 1, 2 or 4 and float at widths 1 or 2 are Invalid.
// Signedness is ignored for 4-byte floats.
func Classify(bytesPerPixel int, isSigned, isFloat bool) PixelType {
	switch bytesPerPixel {
	case 1:
		switch {
		case isFloat:
			return Invalid
		case isSigned:
			return Int8
		default:
			return Uint8
		}
	case 2:
		switch {
		case isFloat:
			return Invalid
		case isSigned:
			return Int16
		default:
			return Uint16
		}
	case 4:
		switch {
		case isFloat:
			return Float
		case isSigned:
			return Int32
		default:
			return Uint32
		}
	default:
		return Invalid
	}
}

// ParsePixelType returns the PixelType with the given name.
func ParsePixelType(s string) (PixelType, error) {
	for t, name := range typeNames {
		if name == s && t != Invalid {
			return t, nil
		}
	}
	return Invalid, fmt.Errorf("unknown pixel type %q", s)
}

func (t PixelType) String() string {
	name, found := typeNames[t]
	if !found {
		return "invalid"
	}
	return name
}

func (t PixelType) Valid() bool {
	return t > Invalid && t <= Float
}

// BytesPerPixel returns the width of one sample or 0 for Invalid.
func (t PixelType) BytesPerPixel() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float:
		return 4
	default:
		return 0
	}
}

func (t PixelType) IsSigned() bool {
	return t == Int8 || t == Int16 || t == Int32
}

func (t PixelType) IsFloat() bool {
	return t == Float
}

// MarshalJSON implements the json.Marshaler interface.
func (t PixelType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *PixelType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "invalid" {
		*t = Invalid
		return nil
	}
	pt, err := ParsePixelType(s)
	if err != nil {
		return err
	}
	*t = pt
	return nil
}
