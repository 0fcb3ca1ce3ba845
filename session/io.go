/*
	This file handles addressed reads, writes and conversions.
*/

package session

import (
	"context"
	"fmt"

	"github.com/coocood/freecache"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/wire"
)

func cacheKey(id pixel.PixelsID, addr pixel.Address, bigEndian bool) []byte {
	return []byte(fmt.Sprintf("%d/%s/%t", id, addr, bigEndian))
}

// Read returns the bytes at addr with samples in the requested byte order.
// It fails with pixel.ErrNotReadable while the array is writable.
func (s *Session) Read(ctx context.Context, id pixel.PixelsID, addr pixel.Address, bigEndian bool) ([]byte, error) {
	dims := s.knownDims(id)
	if err := addr.Validate(dims); err != nil {
		return nil, err
	}
	key := cacheKey(id, addr, bigEndian)
	if s.cache != nil {
		data, err := s.cache.Get(key)
		if err == nil {
			return data, nil
		}
		if err != freecache.ErrNotFound {
			return nil, err
		}
	}

	fields := addr.AppendFields(pixelsFields(id).AddBool("BigEndian", bigEndian))
	method := "Get" + addr.Suffix()
	resp, err := s.do(ctx, wire.Request{Method: method, Fields: fields})
	if err != nil {
		return nil, err
	}
	data := resp.Bytes()
	if dims.Validate() == nil {
		if expected := pixel.NumBytes(addr, dims); int64(len(data)) != expected {
			return nil, &pixel.ProtocolError{
				Method:   method,
				Step:     "payload",
				Expected: fmt.Sprintf("%d bytes", expected),
				Actual:   fmt.Sprintf("%d bytes", len(data)),
			}
		}
	}
	s.markSealed(id)
	if s.cache != nil {
		if err := s.cache.Set(key, data, 0); err != nil {
			pixel.Debugf("Not caching %s of pixels %d: %v\n", addr, id, err)
		}
	}
	return data, nil
}

func (s *Session) ReadWhole(ctx context.Context, id pixel.PixelsID, bigEndian bool) ([]byte, error) {
	return s.Read(ctx, id, pixel.Whole{}, bigEndian)
}

func (s *Session) ReadStack(ctx context.Context, id pixel.PixelsID, c, t int, bigEndian bool) ([]byte, error) {
	return s.Read(ctx, id, pixel.Stack{C: c, T: t}, bigEndian)
}

func (s *Session) ReadPlane(ctx context.Context, id pixel.PixelsID, z, c, t int, bigEndian bool) ([]byte, error) {
	return s.Read(ctx, id, pixel.Plane{Z: z, C: c, T: t}, bigEndian)
}

func (s *Session) ReadROI(ctx context.Context, id pixel.PixelsID, roi pixel.ROI, bigEndian bool) ([]byte, error) {
	return s.Read(ctx, id, roi, bigEndian)
}

// checkWritable rejects writes to arrays this session already knows are sealed.
// Sealing is one-way, so a known sealed state can never be stale.
func (s *Session) checkWritable(method string, id pixel.PixelsID) error {
	if info, found := s.info(id); found && info.Sealed {
		return fmt.Errorf("%s: %w: pixels %d", method, pixel.ErrNotWritable, id)
	}
	return nil
}

// Write stores the payload at addr.  bigEndian declares the byte order of the
// supplied samples; the server swaps if it differs from its storage order.
// The payload is expected to be exactly the addressed size.  It fails with
// pixel.ErrNotWritable once the array is sealed.
func (s *Session) Write(ctx context.Context, id pixel.PixelsID, addr pixel.Address, payload *wire.Payload, bigEndian bool) (int64, error) {
	if _, ok := addr.(pixel.Rows); ok {
		return 0, fmt.Errorf("%w: rows may only be converted from uploaded files", pixel.ErrBadAddress)
	}
	method := "Set" + addr.Suffix()
	if err := s.checkWritable(method, id); err != nil {
		return 0, err
	}
	if err := addr.Validate(s.knownDims(id)); err != nil {
		return 0, err
	}
	fields := addr.AppendFields(pixelsFields(id).AddBool("BigEndian", bigEndian))
	resp, err := s.do(ctx, wire.Request{Method: method, Fields: fields, Part: "Pixels", Payload: payload})
	if err != nil {
		return 0, err
	}
	return readCount(resp)
}

func (s *Session) WriteWhole(ctx context.Context, id pixel.PixelsID, payload *wire.Payload, bigEndian bool) (int64, error) {
	return s.Write(ctx, id, pixel.Whole{}, payload, bigEndian)
}

func (s *Session) WriteStack(ctx context.Context, id pixel.PixelsID, c, t int, payload *wire.Payload, bigEndian bool) (int64, error) {
	return s.Write(ctx, id, pixel.Stack{C: c, T: t}, payload, bigEndian)
}

func (s *Session) WritePlane(ctx context.Context, id pixel.PixelsID, z, c, t int, payload *wire.Payload, bigEndian bool) (int64, error) {
	return s.Write(ctx, id, pixel.Plane{Z: z, C: c, T: t}, payload, bigEndian)
}

func (s *Session) WriteROI(ctx context.Context, id pixel.PixelsID, roi pixel.ROI, payload *wire.Payload, bigEndian bool) (int64, error) {
	return s.Write(ctx, id, roi, payload, bigEndian)
}

// Convert copies raw samples from a previously uploaded file, starting at
// byte offset, into the stack, plane or rows at addr without a client-side
// round trip.  It returns the number of bytes written.
func (s *Session) Convert(ctx context.Context, id pixel.PixelsID, addr pixel.Address, file pixel.FileID, offset int64, bigEndian bool) (int64, error) {
	switch addr.(type) {
	case pixel.Stack, pixel.Plane, pixel.Rows:
	default:
		return 0, fmt.Errorf("%w: cannot convert into %s", pixel.ErrBadAddress, addr)
	}
	if offset < 0 {
		return 0, fmt.Errorf("%w: negative file offset %d", pixel.ErrBadAddress, offset)
	}
	method := "Convert" + addr.Suffix()
	if err := s.checkWritable(method, id); err != nil {
		return 0, err
	}
	if err := addr.Validate(s.knownDims(id)); err != nil {
		return 0, err
	}
	fields := pixelsFields(id).Add("FileID", file.String()).AddInt("Offset", offset).AddBool("BigEndian", bigEndian)
	resp, err := s.do(ctx, wire.Request{Method: method, Fields: addr.AppendFields(fields)})
	if err != nil {
		return 0, err
	}
	return readCount(resp)
}

// ConvertTIFF copies the image in directory dir of an uploaded TIFF file into
// one plane.  Byte order comes from the TIFF header.
func (s *Session) ConvertTIFF(ctx context.Context, id pixel.PixelsID, plane pixel.Plane, file pixel.FileID, dir int) (int64, error) {
	const method = "ConvertTIFF"
	if dir < 0 {
		return 0, fmt.Errorf("%w: negative TIFF directory %d", pixel.ErrBadAddress, dir)
	}
	if err := s.checkWritable(method, id); err != nil {
		return 0, err
	}
	if err := plane.Validate(s.knownDims(id)); err != nil {
		return 0, err
	}
	fields := pixelsFields(id).Add("FileID", file.String()).AddInt("TIFFDir", int64(dir))
	resp, err := s.do(ctx, wire.Request{Method: method, Fields: plane.AppendFields(fields)})
	if err != nil {
		return 0, err
	}
	return readCount(resp)
}
