/*
	This file walks the directory chain of a TIFF file to pull raw strip data
	for one image without decoding or normalizing samples.
*/

package server

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TIFF tags needed to locate uncompressed single-channel image data.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagStripByteCounts = 279
	tagSampleFormat    = 339
)

// TIFF field types.
const (
	dtByte  = 1
	dtShort = 3
	dtLong  = 4
)

// maxTIFFDirs bounds the directory walk so a looping chain terminates.
const maxTIFFDirs = 1 << 20

// tiffImage is one image file directory.
type tiffImage struct {
	Width, Height int
	BitsPerSample int
	Samples       int
	Compression   int
	SampleFormat  int // 1 unsigned, 2 signed, 3 float
	StripOffsets  []int64
	StripCounts   []int64
	BigEndian     bool
}

type tiffReader struct {
	r     io.ReaderAt
	order binary.ByteOrder
}

// readTIFFImage returns directory dir (0-based) of the TIFF in r and its raw
// strip data in file byte order.
func readTIFFImage(r io.ReaderAt, dir int) (*tiffImage, []byte, error) {
	var header [8]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, nil, fmt.Errorf("%w: can't read TIFF header: %v", errBadRequest, err)
	}
	t := &tiffReader{r: r}
	switch string(header[:2]) {
	case "II":
		t.order = binary.LittleEndian
	case "MM":
		t.order = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("%w: not a TIFF file", errBadRequest)
	}
	if magic := t.order.Uint16(header[2:4]); magic != 42 {
		return nil, nil, fmt.Errorf("%w: unsupported TIFF version %d", errBadRequest, magic)
	}

	offset := int64(t.order.Uint32(header[4:8]))
	for n := 0; ; n++ {
		if offset == 0 || n >= maxTIFFDirs {
			return nil, nil, fmt.Errorf("%w: TIFF has only %d directories, need directory %d", errBadRequest, n, dir)
		}
		next, err := t.nextDir(offset)
		if err != nil {
			return nil, nil, err
		}
		if n == dir {
			break
		}
		offset = next
	}

	img, err := t.readDir(offset)
	if err != nil {
		return nil, nil, err
	}
	img.BigEndian = t.order == binary.BigEndian
	if img.Compression != 1 {
		return nil, nil, fmt.Errorf("%w: TIFF directory %d is compressed (%d)", errBadRequest, dir, img.Compression)
	}
	if img.Samples != 1 {
		return nil, nil, fmt.Errorf("%w: TIFF directory %d has %d samples per pixel", errBadRequest, dir, img.Samples)
	}
	if len(img.StripOffsets) == 0 || len(img.StripOffsets) != len(img.StripCounts) {
		return nil, nil, fmt.Errorf("%w: TIFF directory %d has bad strip layout", errBadRequest, dir)
	}
	expected := int64(img.Width) * int64(img.Height) * int64(img.BitsPerSample/8)
	var total int64
	for _, count := range img.StripCounts {
		total += count
	}
	if total != expected {
		return nil, nil, fmt.Errorf("%w: TIFF directory %d has %d bytes of strips, expected %d",
			errBadRequest, dir, total, expected)
	}
	data := make([]byte, total)
	var pos int64
	for i, off := range img.StripOffsets {
		if _, err := r.ReadAt(data[pos:pos+img.StripCounts[i]], off); err != nil {
			return nil, nil, fmt.Errorf("%w: can't read TIFF strip %d: %v", errBadRequest, i, err)
		}
		pos += img.StripCounts[i]
	}
	return img, data, nil
}

// nextDir returns the offset of the directory following the one at offset.
func (t *tiffReader) nextDir(offset int64) (int64, error) {
	count, err := t.entryCount(offset)
	if err != nil {
		return 0, err
	}
	var b [4]byte
	if _, err := t.r.ReadAt(b[:], offset+2+12*int64(count)); err != nil {
		return 0, fmt.Errorf("%w: truncated TIFF directory: %v", errBadRequest, err)
	}
	return int64(t.order.Uint32(b[:])), nil
}

func (t *tiffReader) entryCount(offset int64) (int, error) {
	var b [2]byte
	if _, err := t.r.ReadAt(b[:], offset); err != nil {
		return 0, fmt.Errorf("%w: bad TIFF directory offset %d: %v", errBadRequest, offset, err)
	}
	return int(t.order.Uint16(b[:])), nil
}

func (t *tiffReader) readDir(offset int64) (*tiffImage, error) {
	count, err := t.entryCount(offset)
	if err != nil {
		return nil, err
	}
	entries := make([]byte, 12*count)
	if _, err := t.r.ReadAt(entries, offset+2); err != nil {
		return nil, fmt.Errorf("%w: truncated TIFF directory: %v", errBadRequest, err)
	}
	img := &tiffImage{Samples: 1, Compression: 1, SampleFormat: 1, BitsPerSample: 1}
	for i := 0; i < count; i++ {
		e := entries[12*i : 12*i+12]
		tag := t.order.Uint16(e[0:2])
		switch tag {
		case tagImageWidth, tagImageLength, tagBitsPerSample, tagCompression,
			tagStripOffsets, tagSamplesPerPixel, tagStripByteCounts, tagSampleFormat:
		default:
			continue
		}
		values, err := t.values(tag, e)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: TIFF tag %d has no values", errBadRequest, tag)
		}
		switch tag {
		case tagImageWidth:
			img.Width = int(values[0])
		case tagImageLength:
			img.Height = int(values[0])
		case tagBitsPerSample:
			img.BitsPerSample = int(values[0])
		case tagCompression:
			img.Compression = int(values[0])
		case tagStripOffsets:
			img.StripOffsets = values
		case tagSamplesPerPixel:
			img.Samples = int(values[0])
		case tagStripByteCounts:
			img.StripCounts = values
		case tagSampleFormat:
			img.SampleFormat = int(values[0])
		}
	}
	return img, nil
}

// values decodes the BYTE, SHORT or LONG values of a 12-byte directory entry.
func (t *tiffReader) values(tag uint16, e []byte) ([]int64, error) {
	typ := t.order.Uint16(e[2:4])
	count := int64(t.order.Uint32(e[4:8]))
	var size int64
	switch typ {
	case dtByte:
		size = 1
	case dtShort:
		size = 2
	case dtLong:
		size = 4
	default:
		return nil, fmt.Errorf("%w: TIFF tag %d has unsupported type %d", errBadRequest, tag, typ)
	}
	if count > 1<<24 {
		return nil, fmt.Errorf("%w: TIFF tag %d has %d values", errBadRequest, tag, count)
	}
	raw := e[8:12]
	if size*count > 4 {
		raw = make([]byte, size*count)
		if _, err := t.r.ReadAt(raw, int64(t.order.Uint32(e[8:12]))); err != nil {
			return nil, fmt.Errorf("%w: can't read TIFF tag %d values: %v", errBadRequest, tag, err)
		}
	}
	values := make([]int64, count)
	for i := range values {
		switch size {
		case 1:
			values[i] = int64(raw[i])
		case 2:
			values[i] = int64(t.order.Uint16(raw[2*i:]))
		case 4:
			values[i] = int64(t.order.Uint32(raw[4*i:]))
		}
	}
	return values, nil
}
