package session

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/server"
	"github.com/janelia-flyem/pixaccess/wire"
)

// testSession returns a session over a reference server and a counter of
// requests that reached it.
func testSession(t *testing.T, opts ...Option) (*Session, *int64) {
	srv, _ := server.OpenTest(t)
	var calls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		srv.Handler().ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	client, err := wire.NewClient(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	return New(client, opts...), &calls
}

var sampleDims = pixel.Dims{X: 4, Y: 4, Z: 1, C: 1, T: 1, BytesPerPixel: 2}

// ramp returns n uint16 samples 0..n-1 in the given byte order.
func ramp(n int, order binary.ByteOrder) []byte {
	b := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		order.PutUint16(b[2*i:], uint16(i))
	}
	return b
}

func TestSampleLifecycle(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleDims, false, false)
	if err != nil {
		t.Fatal(err)
	}
	info, err := s.Describe(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Dims != sampleDims || info.Sealed || info.Type() != pixel.Uint16 {
		t.Errorf("bad description of new array: %s\n", info)
	}

	plane := ramp(16, binary.LittleEndian)
	n, err := s.WritePlane(ctx, id, 0, 0, 0, wire.Bytes(plane), false)
	if err != nil || n != 32 {
		t.Fatalf("bad plane write (%d): %v\n", n, err)
	}
	if _, err := s.ReadPlane(ctx, id, 0, 0, 0, false); !errors.Is(err, pixel.ErrNotReadable) {
		t.Errorf("expected read of writable array to fail, got %v\n", err)
	}

	sealedID, err := s.Seal(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sealedID != id {
		t.Errorf("unique array should keep id %d, got %d\n", id, sealedID)
	}
	sealed, err := s.IsSealed(ctx, id)
	if err != nil || !sealed {
		t.Errorf("expected sealed array (%v)\n", err)
	}

	roi, err := s.ReadROI(ctx, id, pixel.ROI{X0: 1, Y0: 1, X1: 2, Y1: 2}, false)
	if err != nil {
		t.Fatal(err)
	}
	var values []uint16
	for i := 0; i < len(roi); i += 2 {
		values = append(values, binary.LittleEndian.Uint16(roi[i:]))
	}
	if len(values) != 4 || values[0] != 5 || values[1] != 6 || values[2] != 9 || values[3] != 10 {
		t.Errorf("expected inclusive ROI [5 6 9 10], got %v\n", values)
	}

	whole, err := s.ReadWhole(ctx, id, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(whole, ramp(16, binary.BigEndian)) {
		t.Errorf("big-endian read differs: %v\n", whole)
	}

	digest, err := s.Digest(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	expected := sha1.Sum(plane)
	if digest != hex.EncodeToString(expected[:]) {
		t.Errorf("expected digest %x, got %s\n", expected, digest)
	}
}

func TestLocalRejection(t *testing.T) {
	s, calls := testSession(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, sampleDims, false, true); !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected 16-bit float to be invalid, got %v\n", err)
	}
	bad := sampleDims
	bad.Z = 0
	if _, err := s.Create(ctx, bad, false, false); !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected zero-sized dims to be invalid, got %v\n", err)
	}
	if n := atomic.LoadInt64(calls); n != 0 {
		t.Errorf("invalid formats should be rejected before I/O, saw %d calls\n", n)
	}

	id, err := s.Create(ctx, sampleDims, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteWhole(ctx, id, wire.Bytes(make([]byte, 32)), false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Seal(ctx, id); err != nil {
		t.Fatal(err)
	}
	before := atomic.LoadInt64(calls)

	if _, err := s.WritePlane(ctx, id, 0, 0, 0, wire.Bytes(make([]byte, 32)), false); !errors.Is(err, pixel.ErrNotWritable) {
		t.Errorf("expected write to sealed array to fail, got %v\n", err)
	}
	if _, err := s.Convert(ctx, id, pixel.Plane{}, 1, 0, false); !errors.Is(err, pixel.ErrNotWritable) {
		t.Errorf("expected convert into sealed array to fail, got %v\n", err)
	}
	if _, err := s.ReadPlane(ctx, id, 1, 0, 0, false); !errors.Is(err, pixel.ErrBadAddress) {
		t.Errorf("expected z out of range to fail, got %v\n", err)
	}
	if _, err := s.ReadROI(ctx, id, pixel.ROI{X0: 2, X1: 1}, false); !errors.Is(err, pixel.ErrBadAddress) {
		t.Errorf("expected reversed ROI to fail, got %v\n", err)
	}
	if _, err := s.Write(ctx, id, pixel.Rows{N: 1}, wire.Bytes(nil), false); !errors.Is(err, pixel.ErrBadAddress) {
		t.Errorf("expected row writes to be rejected, got %v\n", err)
	}
	if _, err := s.Convert(ctx, id, pixel.ROI{}, 1, 0, false); !errors.Is(err, pixel.ErrBadAddress) {
		t.Errorf("expected ROI conversion to be rejected, got %v\n", err)
	}
	if n := atomic.LoadInt64(calls); n != before {
		t.Errorf("local rejections made %d calls\n", n-before)
	}
}

func TestServerEnforcesLifecycle(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	id, err := s.Create(ctx, sampleDims, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Seal(ctx, id); err != nil {
		t.Fatal(err)
	}

	// A second session has no knowledge of the seal.
	other := New(s.Client())
	if _, err := other.WriteWhole(ctx, id, wire.Bytes(make([]byte, 32)), false); !errors.Is(err, pixel.ErrNotWritable) {
		t.Errorf("expected server to reject write to sealed array, got %v\n", err)
	}
	if _, err := other.Seal(ctx, id); !errors.Is(err, pixel.ErrNotWritable) {
		t.Errorf("expected server to reject second seal, got %v\n", err)
	}
	if _, err := other.Describe(ctx, 999); !errors.Is(err, pixel.ErrNotFound) {
		t.Errorf("expected unknown pixels to be not found, got %v\n", err)
	}
}

func TestSealAdoptsExistingID(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	var ids []pixel.PixelsID
	for i := 0; i < 2; i++ {
		id, err := s.Create(ctx, sampleDims, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.WriteWhole(ctx, id, wire.Bytes(ramp(16, binary.BigEndian)), true); err != nil {
			t.Fatal(err)
		}
		sealedID, err := s.Seal(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id, sealedID)
	}
	if ids[0] == ids[2] {
		t.Fatalf("new arrays should have distinct ids: %v\n", ids)
	}
	if ids[3] != ids[0] {
		t.Errorf("identical array should be sealed as %d, got %d\n", ids[0], ids[3])
	}
	if _, err := s.Describe(ctx, ids[2]); !errors.Is(err, pixel.ErrNotFound) {
		t.Errorf("duplicate id should no longer exist, got %v\n", err)
	}
}

func TestReadCache(t *testing.T) {
	s, calls := testSession(t, WithReadCache(1*pixel.Mega))
	ctx := context.Background()
	id, err := s.Create(ctx, sampleDims, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteWhole(ctx, id, wire.Bytes(ramp(16, binary.LittleEndian)), false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Seal(ctx, id); err != nil {
		t.Fatal(err)
	}

	first, err := s.ReadStack(ctx, id, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	before := atomic.LoadInt64(calls)
	second, err := s.ReadStack(ctx, id, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("cached read differs\n")
	}
	if n := atomic.LoadInt64(calls); n != before {
		t.Errorf("expected cached read, saw %d calls\n", n-before)
	}
	// Other byte order is a separate entry.
	if _, err := s.ReadStack(ctx, id, 0, 0, true); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt64(calls); n != before+1 {
		t.Errorf("expected one call for big-endian read, saw %d\n", n-before)
	}
}

func TestConcurrentCalls(t *testing.T) {
	s, _ := testSession(t)
	ctx := context.Background()
	dims := pixel.Dims{X: 8, Y: 8, Z: 8, C: 1, T: 1, BytesPerPixel: 1}
	id, err := s.Create(ctx, dims, false, false)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, dims.Z)
	for z := 0; z < dims.Z; z++ {
		wg.Add(1)
		go func(z int) {
			defer wg.Done()
			_, err := s.WritePlane(ctx, id, z, 0, 0, wire.Bytes(bytes.Repeat([]byte{byte(z)}, 64)), false)
			errs <- err
		}(z)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Seal(ctx, id); err != nil {
		t.Fatal(err)
	}
	for z := 0; z < dims.Z; z++ {
		plane, err := s.ReadPlane(ctx, id, z, 0, 0, false)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(plane, bytes.Repeat([]byte{byte(z)}, 64)) {
			t.Errorf("plane %d has wrong contents\n", z)
		}
	}
}

func TestFilesAndConversion(t *testing.T) {
	s, calls := testSession(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "stack.raw")
	contents := append([]byte("HDR!"), ramp(32, binary.BigEndian)...)
	if err := os.WriteFile(path, contents, 0644); err != nil {
		t.Fatal(err)
	}
	fileID, err := s.Upload(ctx, wire.LocalFile(path))
	if err != nil {
		t.Fatal(err)
	}
	length, digest, err := s.FileInfo(ctx, fileID)
	if err != nil {
		t.Fatal(err)
	}
	expected := sha1.Sum(contents)
	if length != int64(len(contents)) || digest != hex.EncodeToString(expected[:]) {
		t.Errorf("bad file info: %d bytes, sha1 %s\n", length, digest)
	}
	header, err := s.ReadFile(ctx, fileID, 0, 4)
	if err != nil || string(header) != "HDR!" {
		t.Errorf("bad file read %q: %v\n", header, err)
	}

	dims := pixel.Dims{X: 4, Y: 4, Z: 2, C: 1, T: 1, BytesPerPixel: 2}
	id, err := s.Create(ctx, dims, false, false)
	if err != nil {
		t.Fatal(err)
	}
	n, err := s.Convert(ctx, id, pixel.Stack{}, fileID, 4, true)
	if err != nil || n != 64 {
		t.Fatalf("bad stack conversion (%d): %v\n", n, err)
	}
	if _, err := s.Seal(ctx, id); err != nil {
		t.Fatal(err)
	}
	plane, err := s.ReadPlane(ctx, id, 1, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if v := binary.LittleEndian.Uint16(plane[0:]); v != 16 {
		t.Errorf("expected first sample of plane 1 to be 16, got %d\n", v)
	}

	if err := s.DeleteFile(ctx, fileID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.FileInfo(ctx, fileID); !errors.Is(err, pixel.ErrNotFound) {
		t.Errorf("expected deleted file to be not found, got %v\n", err)
	}

	before := atomic.LoadInt64(calls)
	var lerr *pixel.LocalFileError
	if _, err := s.Upload(ctx, wire.LocalFile(filepath.Join(dir, "missing.raw"))); !errors.As(err, &lerr) {
		t.Errorf("expected local file error, got %v\n", err)
	}
	if n := atomic.LoadInt64(calls); n != before {
		t.Errorf("missing local file should not reach the server\n")
	}
}
