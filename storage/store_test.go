package storage

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/pixel"
)

func openTestStore(t *testing.T, compression string) *Store {
	pixel.SetLogMode(pixel.WarningMode)
	s, err := Open(config.StoreConfig{Compression: compression, Checksum: true})
	if err != nil {
		t.Fatalf("can't open test store: %v\n", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("error closing store: %v\n", err)
		}
	})
	return s
}

// rampPlane returns a plane of uint16 little-endian samples with value base + index.
func rampPlane(d pixel.Dims, base int) []byte {
	n := int(d.PlanePixels())
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := uint16(base + i)
		b[2*i] = byte(v)
		b[2*i+1] = byte(v >> 8)
	}
	return b
}

func TestLifecycle(t *testing.T) {
	for _, compression := range []string{"none", "snappy", "zstd"} {
		s := openTestStore(t, compression)
		dims := pixel.Dims{X: 4, Y: 4, Z: 2, C: 1, T: 1, BytesPerPixel: 2}
		m, err := s.Create(dims, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if m.ID != 1 || m.Sealed || m.Type() != pixel.Uint16 {
			t.Fatalf("bad new array: %+v\n", m)
		}

		plane0 := rampPlane(dims, 0)
		if n, err := s.Write(m.ID, pixel.Plane{Z: 0}, plane0, false); err != nil || n != 32 {
			t.Fatalf("bad plane write (%d bytes): %v\n", n, err)
		}
		if _, err := s.Read(m.ID, pixel.Plane{Z: 0}, false); !errors.Is(err, pixel.ErrNotReadable) {
			t.Errorf("expected read of writable array to fail, got %v\n", err)
		}
		if _, err := s.Digest(m.ID); !errors.Is(err, pixel.ErrNotReadable) {
			t.Errorf("expected digest of writable array to fail, got %v\n", err)
		}

		id, err := s.Finish(m.ID)
		if err != nil || id != m.ID {
			t.Fatalf("bad finish (%d): %v\n", id, err)
		}
		got, err := s.Read(id, pixel.Plane{Z: 0}, false)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, plane0) {
			t.Errorf("%s: plane read back differs\n", compression)
		}
		// Never written plane reads as zeros.
		got, err = s.Read(id, pixel.Plane{Z: 1}, false)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, make([]byte, 32)) {
			t.Errorf("unwritten plane should be zeros: %v\n", got)
		}
		if _, err := s.Write(id, pixel.Plane{Z: 1}, plane0, false); !errors.Is(err, pixel.ErrNotWritable) {
			t.Errorf("expected write to sealed array to fail, got %v\n", err)
		}
		if _, err := s.Finish(id); !errors.Is(err, pixel.ErrNotWritable) {
			t.Errorf("expected second finish to fail, got %v\n", err)
		}
		digest, err := s.Digest(id)
		if err != nil || len(digest) != 40 {
			t.Errorf("bad digest %q: %v\n", digest, err)
		}
	}
}

func TestROIAndEndianness(t *testing.T) {
	s := openTestStore(t, "snappy")
	dims := pixel.Dims{X: 4, Y: 4, Z: 1, C: 1, T: 1, BytesPerPixel: 2}
	m, err := s.Create(dims, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write(m.ID, pixel.Whole{}, rampPlane(dims, 0), false); err != nil {
		t.Fatal(err)
	}
	// Overwrite the inclusive 2x2 corner at (2..3, 2..3) with big-endian 0xFFFE.
	roi := pixel.ROI{X0: 2, Y0: 2, X1: 3, Y1: 3}
	patch := bytes.Repeat([]byte{0xFF, 0xFE}, 4)
	if n, err := s.Write(m.ID, roi, patch, true); err != nil || n != 8 {
		t.Fatalf("bad ROI write (%d): %v\n", n, err)
	}
	if _, err := s.Write(m.ID, roi, patch[:6], false); !errors.Is(err, pixel.ErrBadAddress) {
		t.Errorf("expected short payload to fail, got %v\n", err)
	}
	if _, err := s.Finish(m.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(m.ID, roi, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{0xFE, 0xFF}, 4)) {
		t.Errorf("ROI stored in wrong byte order: %v\n", got)
	}

	// Row 1 of the ramp read big-endian.
	got, err = s.Read(m.ID, pixel.Rows{Y: 1, N: 1}, true)
	if err != nil {
		t.Fatal(err)
	}
	if expected := []byte{0, 4, 0, 5, 0, 6, 0, 7}; !bytes.Equal(got, expected) {
		t.Errorf("expected row %v, got %v\n", expected, got)
	}

	// Pixel (3,3) is the last element of a whole read.
	got, err = s.Read(m.ID, pixel.Whole{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 32 || got[30] != 0xFE || got[31] != 0xFF || got[0] != 0 || got[2] != 1 {
		t.Errorf("bad whole read: %v\n", got)
	}
	if _, err := s.Read(m.ID, pixel.ROI{X1: 4, Y1: 0}, false); !errors.Is(err, pixel.ErrBadAddress) {
		t.Errorf("expected out of bounds ROI to fail, got %v\n", err)
	}
}

func TestFinishDeduplicates(t *testing.T) {
	s := openTestStore(t, "zstd")
	dims := pixel.Dims{X: 3, Y: 2, Z: 1, C: 2, T: 1, BytesPerPixel: 2}
	var ids []pixel.PixelsID
	for i := 0; i < 2; i++ {
		m, err := s.Create(dims, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Write(m.ID, pixel.Stack{C: 1}, rampPlane(dims, 7), false); err != nil {
			t.Fatal(err)
		}
		id, err := s.Finish(m.ID)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if ids[0] != ids[1] {
		t.Errorf("identical arrays should share an id: %v\n", ids)
	}
	if _, err := s.Meta(2); !errors.Is(err, pixel.ErrNotFound) {
		t.Errorf("duplicate array should be discarded, got %v\n", err)
	}

	// Same contents with a different pixel type are distinct.
	m, err := s.Create(dims, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write(m.ID, pixel.Stack{C: 1}, rampPlane(dims, 7), false); err != nil {
		t.Fatal(err)
	}
	id, err := s.Finish(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if id != m.ID {
		t.Errorf("signed array should keep its own id %d, got %d\n", m.ID, id)
	}
}

func TestCreateErrors(t *testing.T) {
	s := openTestStore(t, "")
	if _, err := s.Create(pixel.Dims{X: 0, Y: 1, Z: 1, C: 1, T: 1, BytesPerPixel: 1}, false, false); !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected zero size to fail, got %v\n", err)
	}
	if _, err := s.Create(pixel.Dims{X: 1, Y: 1, Z: 1, C: 1, T: 1, BytesPerPixel: 2}, false, true); !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected 16-bit float to fail, got %v\n", err)
	}
	huge := pixel.Dims{X: 1 << 40, Y: 1 << 40, Z: 1, C: 1, T: 1, BytesPerPixel: 4}
	if _, err := s.Create(huge, false, true); !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected huge planes to fail, got %v\n", err)
	}
	overflow := pixel.Dims{X: 1 << 62, Y: 4, Z: 1, C: 1, T: 1, BytesPerPixel: 4}
	if _, err := s.Create(overflow, false, false); !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected overflowing plane size to fail, got %v\n", err)
	}
	if _, err := s.Meta(99); !errors.Is(err, pixel.ErrNotFound) {
		t.Errorf("expected missing array, got %v\n", err)
	}
	a, err := s.NextFileID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.NextFileID()
	if err != nil {
		t.Fatal(err)
	}
	if a != 1 || b != 2 {
		t.Errorf("bad file ids %d, %d\n", a, b)
	}
}

func TestFileRecords(t *testing.T) {
	s := openTestStore(t, "snappy")
	id, err := s.NextFileID()
	if err != nil {
		t.Fatal(err)
	}
	f := FileMeta{ID: id, Name: "stack.raw", Length: 1024, SHA1: "abc"}
	if err := s.PutFile(f); err != nil {
		t.Fatal(err)
	}
	got, err := s.File(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != f.Name || got.Length != f.Length || got.SHA1 != f.SHA1 {
		t.Errorf("expected %+v, got %+v\n", f, got)
	}
	if err := s.DeleteFile(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.File(id); !errors.Is(err, pixel.ErrNotFound) {
		t.Errorf("expected deleted file to be missing, got %v\n", err)
	}
	if err := s.DeleteFile(id); !errors.Is(err, pixel.ErrNotFound) {
		t.Errorf("expected second delete to fail, got %v\n", err)
	}
}

func TestMaxPlaneSize(t *testing.T) {
	pixel.SetLogMode(pixel.WarningMode)
	s, err := Open(config.StoreConfig{MaxPlaneMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Create(pixel.Dims{X: 1024, Y: 1024, Z: 2, C: 1, T: 1, BytesPerPixel: 1}, false, false); err != nil {
		t.Errorf("1 MiB planes should fit the limit: %v\n", err)
	}
	if _, err := s.Create(pixel.Dims{X: 1024, Y: 1024, Z: 1, C: 1, T: 1, BytesPerPixel: 2}, false, false); !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected 2 MiB planes to fail, got %v\n", err)
	}
	if _, err := s.Create(pixel.Dims{X: 1, Y: 1024*1024 + 1, Z: 1, C: 1, T: 1, BytesPerPixel: 1}, false, false); !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected tall planes over the limit to fail, got %v\n", err)
	}
}

func TestDigestOfUnwrittenPlanes(t *testing.T) {
	s := openTestStore(t, "none")
	// Planes larger than one zero chunk.
	dims := pixel.Dims{X: 300, Y: 300, Z: 2, C: 1, T: 1, BytesPerPixel: 2}
	m, err := s.Create(dims, false, false)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Finish(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	digest, err := s.Digest(id)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha1.Sum(make([]byte, dims.TotalBytes()))
	if expected := hex.EncodeToString(sum[:]); digest != expected {
		t.Errorf("expected digest of zeros %s, got %s\n", expected, digest)
	}
}
