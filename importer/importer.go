package importer

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/pixaccess/access"
	"github.com/janelia-flyem/pixaccess/pixel"
)

// Run uploads every distinct source file of the manifest into repo, converts
// each array from its file and seals it.  Descriptors are returned in
// manifest order.  An array that fails stays unsealed on the server.
func Run(ctx context.Context, f *access.Facade, repo *access.RepositoryEndpoint, m *Manifest) ([]*access.PixelArrayDescriptor, error) {
	owner := access.Owner{Kind: m.Owner.Kind, ID: m.Owner.ID}

	var paths []string
	index := make(map[string]int)
	for _, a := range m.Arrays {
		if _, found := index[a.File]; !found {
			index[a.File] = len(paths)
			paths = append(paths, a.File)
		}
	}
	timedLog := pixel.NewTimeLog()
	files, err := f.UploadAll(ctx, repo, owner, paths)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, fd := range files {
		total += fd.Size
	}
	timedLog.Infof("Uploaded %d files (%s) to repository %s", len(files), humanize.Bytes(uint64(total)), repo.ID)

	descs := make([]*access.PixelArrayDescriptor, len(m.Arrays))
	for i, a := range m.Arrays {
		d, err := importArray(ctx, f, repo, owner, a, files[index[a.File]])
		if err != nil {
			return nil, fmt.Errorf("array %d, %s: %w", i, a, err)
		}
		descs[i] = d
	}
	return descs, nil
}

func importArray(ctx context.Context, f *access.Facade, repo *access.RepositoryEndpoint, owner access.Owner, a Array, file *access.FileDescriptor) (*access.PixelArrayDescriptor, error) {
	dims := a.PixelDims()
	if a.Layout != LayoutTIFF {
		if need := a.Offset + dims.TotalBytes(); need > file.Size {
			return nil, fmt.Errorf("%w: %s holds %d bytes, need %d from offset %d",
				pixel.ErrBadAddress, file, file.Size, dims.TotalBytes(), a.Offset)
		}
	}
	timedLog := pixel.NewTimeLog()
	d, err := f.CreateArray(ctx, repo, owner, dims, a.Signed, a.Float)
	if err != nil {
		return nil, err
	}
	for t := 0; t < dims.T; t++ {
		for c := 0; c < dims.C; c++ {
			if a.Layout == LayoutStacks {
				offset := a.Offset + int64(t*dims.C+c)*dims.StackBytes()
				if _, err := f.Convert(ctx, d, pixel.Stack{C: c, T: t}, file, offset, a.BigEndian); err != nil {
					return nil, err
				}
				continue
			}
			for z := 0; z < dims.Z; z++ {
				plane := pixel.Plane{Z: z, C: c, T: t}
				n := dims.PlaneIndex(z, c, t)
				if a.Layout == LayoutTIFF {
					_, err = f.ConvertTIFF(ctx, d, plane, file, n)
				} else {
					_, err = f.Convert(ctx, d, plane, file, a.Offset+int64(n)*dims.PlaneBytes(), a.BigEndian)
				}
				if err != nil {
					return nil, err
				}
			}
		}
	}
	if err := f.Finish(ctx, d); err != nil {
		return nil, err
	}
	timedLog.Debugf("Imported %s from %s as %s", a, file, d)
	return d, nil
}
