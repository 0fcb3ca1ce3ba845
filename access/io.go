/*
	This file has addressed I/O on descriptors.
*/

package access

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/wire"
)

// Read returns the addressed samples of a sealed array.
func (f *Facade) Read(ctx context.Context, d *PixelArrayDescriptor, addr pixel.Address, bigEndian bool) ([]byte, error) {
	s, err := f.session(ctx, d)
	if err != nil {
		return nil, err
	}
	data, err := s.Read(ctx, d.PixelsID, addr, bigEndian)
	return data, d.wrap("read "+addr.String()+" of", err)
}

func (f *Facade) ReadWhole(ctx context.Context, d *PixelArrayDescriptor, bigEndian bool) ([]byte, error) {
	return f.Read(ctx, d, pixel.Whole{}, bigEndian)
}

func (f *Facade) ReadStack(ctx context.Context, d *PixelArrayDescriptor, c, t int, bigEndian bool) ([]byte, error) {
	return f.Read(ctx, d, pixel.Stack{C: c, T: t}, bigEndian)
}

func (f *Facade) ReadPlane(ctx context.Context, d *PixelArrayDescriptor, z, c, t int, bigEndian bool) ([]byte, error) {
	return f.Read(ctx, d, pixel.Plane{Z: z, C: c, T: t}, bigEndian)
}

func (f *Facade) ReadROI(ctx context.Context, d *PixelArrayDescriptor, roi pixel.ROI, bigEndian bool) ([]byte, error) {
	return f.Read(ctx, d, roi, bigEndian)
}

// Write stores payload at addr of a writable array and returns the byte
// count the server reports.
func (f *Facade) Write(ctx context.Context, d *PixelArrayDescriptor, addr pixel.Address, payload *wire.Payload, bigEndian bool) (int64, error) {
	op := "write " + addr.String() + " of"
	if d.Sealed {
		return 0, d.wrap(op, pixel.ErrNotWritable)
	}
	s, err := f.session(ctx, d)
	if err != nil {
		return 0, err
	}
	n, err := s.Write(ctx, d.PixelsID, addr, payload, bigEndian)
	return n, d.wrap(op, err)
}

func (f *Facade) WriteWhole(ctx context.Context, d *PixelArrayDescriptor, payload *wire.Payload, bigEndian bool) (int64, error) {
	return f.Write(ctx, d, pixel.Whole{}, payload, bigEndian)
}

func (f *Facade) WriteStack(ctx context.Context, d *PixelArrayDescriptor, c, t int, payload *wire.Payload, bigEndian bool) (int64, error) {
	return f.Write(ctx, d, pixel.Stack{C: c, T: t}, payload, bigEndian)
}

func (f *Facade) WritePlane(ctx context.Context, d *PixelArrayDescriptor, z, c, t int, payload *wire.Payload, bigEndian bool) (int64, error) {
	return f.Write(ctx, d, pixel.Plane{Z: z, C: c, T: t}, payload, bigEndian)
}

func (f *Facade) WriteROI(ctx context.Context, d *PixelArrayDescriptor, roi pixel.ROI, payload *wire.Payload, bigEndian bool) (int64, error) {
	return f.Write(ctx, d, roi, payload, bigEndian)
}

func sameRepository(d *PixelArrayDescriptor, file *FileDescriptor) error {
	if file == nil || file.Repository == nil || d.Repository == nil || file.Repository.ID != d.Repository.ID {
		return fmt.Errorf("conversion source must be uploaded to the same repository as %s", d)
	}
	return nil
}

// Convert copies raw samples from an uploaded file into a stack, plane or
// rows of the array.
func (f *Facade) Convert(ctx context.Context, d *PixelArrayDescriptor, addr pixel.Address, file *FileDescriptor, offset int64, bigEndian bool) (int64, error) {
	op := "convert " + addr.String() + " of"
	if err := sameRepository(d, file); err != nil {
		return 0, err
	}
	if d.Sealed {
		return 0, d.wrap(op, pixel.ErrNotWritable)
	}
	s, err := f.session(ctx, d)
	if err != nil {
		return 0, err
	}
	n, err := s.Convert(ctx, d.PixelsID, addr, file.FileID, offset, bigEndian)
	return n, d.wrap(fmt.Sprintf("%s (from file %d)", op, file.FileID), err)
}

// ConvertTIFF copies directory dir of an uploaded TIFF into one plane.
func (f *Facade) ConvertTIFF(ctx context.Context, d *PixelArrayDescriptor, plane pixel.Plane, file *FileDescriptor, dir int) (int64, error) {
	op := fmt.Sprintf("convert TIFF directory %d into %s of", dir, plane)
	if err := sameRepository(d, file); err != nil {
		return 0, err
	}
	if d.Sealed {
		return 0, d.wrap(op, pixel.ErrNotWritable)
	}
	s, err := f.session(ctx, d)
	if err != nil {
		return 0, err
	}
	n, err := s.ConvertTIFF(ctx, d.PixelsID, plane, file.FileID, dir)
	return n, d.wrap(fmt.Sprintf("%s (from file %d)", op, file.FileID), err)
}
