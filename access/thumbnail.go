package access

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
)

// Thumbnail returns the default composite of an array scaled to fit within
// maxSize x maxSize and encoded in the format named by an image file
// extension, e.g. "png" or "jpg".  Thumbnails of sealed arrays are cached.
func (f *Facade) Thumbnail(ctx context.Context, d *PixelArrayDescriptor, maxSize int, format string) ([]byte, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive, got %d", maxSize)
	}
	imgFormat, err := imaging.FormatFromExtension(format)
	if err != nil {
		return nil, fmt.Errorf("bad thumbnail format %q: %v", format, err)
	}
	key := fmt.Sprintf("%s/%d/%d/%s", d.Repository.ID, d.PixelsID, maxSize, imgFormat)
	if d.Sealed {
		f.thumbMu.Lock()
		v, found := f.thumbs.Get(key)
		f.thumbMu.Unlock()
		if found {
			return v.([]byte), nil
		}
	}

	img, err := f.Composite(ctx, d, DefaultCompositeSettings(d))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imgFormat); err != nil {
		return nil, d.wrap("encode thumbnail of", err)
	}
	data := buf.Bytes()
	if d.Sealed {
		f.thumbMu.Lock()
		f.thumbs.Add(key, data)
		f.thumbMu.Unlock()
	}
	return data, nil
}
