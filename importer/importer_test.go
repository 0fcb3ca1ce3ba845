package importer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janelia-flyem/pixaccess/access"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/server"
	"golang.org/x/image/tiff"
)

const yamlManifest = `
repository: main
owner:
  kind: dataset
  id: ds-12
arrays:
  - name: stacks
    file: stacks.raw
    dims: {x: 2, y: 2, z: 2, c: 2}
    bytes_per_pixel: 2
    big_endian: true
    offset: 4
    layout: stacks
  - file: stacks.raw
    dims: {x: 2, y: 2, z: 2, c: 2}
    bytes_per_pixel: 2
    big_endian: true
    offset: 4
    layout: planes
  - file: gray.tif
    dims: {x: 3, y: 2}
    bytes_per_pixel: 1
    layout: tiff
`

func writeFile(t *testing.T, path string, data []byte) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(yamlManifest), true)
	if err != nil {
		t.Fatal(err)
	}
	if m.Repository != "main" || m.Owner.ID != "ds-12" || len(m.Arrays) != 3 {
		t.Fatalf("bad manifest: %+v\n", m)
	}
	expected := pixel.Dims{X: 2, Y: 2, Z: 2, C: 2, T: 1, BytesPerPixel: 2}
	if d := m.Arrays[0].PixelDims(); d != expected {
		t.Errorf("expected dims %s, got %s\n", expected, d)
	}
	if !strings.HasPrefix(m.Arrays[1].String(), "stacks.raw") {
		t.Errorf("unnamed array should be named by its file, got %s\n", m.Arrays[1])
	}

	j := `{"arrays": [{"file": "a.raw", "dims": {"x": 4, "y": 4}, "bytes_per_pixel": 4, "float": true, "layout": "planes"}]}`
	m, err = Parse([]byte(j), false)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Arrays[0].Float || m.Arrays[0].PixelDims().NumPlanes() != 1 {
		t.Errorf("bad JSON manifest decode: %+v\n", m.Arrays[0])
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"no arrays":     `{"arrays": []}`,
		"bad layout":    `{"arrays": [{"file": "a", "dims": {"x": 1, "y": 1}, "bytes_per_pixel": 1, "layout": "tiles"}]}`,
		"zero size":     `{"arrays": [{"file": "a", "dims": {"x": 0, "y": 1}, "bytes_per_pixel": 1, "layout": "planes"}]}`,
		"bad width":     `{"arrays": [{"file": "a", "dims": {"x": 1, "y": 1}, "bytes_per_pixel": 3, "layout": "planes"}]}`,
		"unknown field": `{"arrays": [{"file": "a", "dims": {"x": 1, "y": 1}, "bytes_per_pixel": 1, "layout": "planes", "color": "red"}]}`,
		"missing file":  `{"arrays": [{"dims": {"x": 1, "y": 1}, "bytes_per_pixel": 1, "layout": "planes"}]}`,
		"not json":      `arrays: []`,
	}
	for name, manifest := range tests {
		if _, err := Parse([]byte(manifest), false); err == nil {
			t.Errorf("%s: expected error\n", name)
		}
	}
	_, err := Parse([]byte(`{"arrays": [{"file": "a", "dims": {"x": 1, "y": 1}, "bytes_per_pixel": 1, "float": true, "layout": "planes"}]}`), false)
	if !errors.Is(err, pixel.ErrInvalidFormat) {
		t.Errorf("expected 8-bit float to be an invalid format, got %v\n", err)
	}
	if _, err := Parse([]byte("arrays: [unterminated"), true); err == nil {
		t.Errorf("expected bad YAML to fail\n")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "import.yaml")
	writeFile(t, manifestPath, []byte(yamlManifest))

	// 4 header bytes, then 16 big-endian uint16 samples valued 0..15.
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	for i := 0; i < 16; i++ {
		raw = append(raw, 0, byte(i))
	}
	writeFile(t, filepath.Join(dir, "stacks.raw"), raw)

	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(gray.Pix, []byte{1, 2, 3, 4, 5, 6})
	var tif bytes.Buffer
	if err := tiff.Encode(&tif, gray, nil); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "gray.tif"), tif.Bytes())

	m, err := Load(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	if m.Arrays[2].File != filepath.Join(dir, "gray.tif") {
		t.Errorf("expected source path relative to manifest, got %s\n", m.Arrays[2].File)
	}

	_, ts := server.OpenTest(t)
	repo := &access.RepositoryEndpoint{ID: m.Repository, URL: ts.URL}
	f := access.New()
	ctx := context.Background()
	descs, err := Run(ctx, f, repo, m)
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors, got %d\n", len(descs))
	}
	for i, d := range descs {
		if !d.Sealed || d.SHA1 == "" || d.Owner.ID != "ds-12" {
			t.Errorf("array %d not finished: %s\n", i, d)
		}
	}
	// Both raw layouts hold the same samples, so sealing dedupes them.
	if descs[0].PixelsID != descs[1].PixelsID || descs[0].SHA1 != descs[1].SHA1 {
		t.Errorf("expected identical arrays to share an id: %s vs %s\n", descs[0], descs[1])
	}

	whole, err := f.ReadWhole(ctx, descs[0], true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(whole, raw[4:]) {
		t.Errorf("expected %v, got %v\n", raw[4:], whole)
	}
	plane, err := f.ReadPlane(ctx, descs[2], 0, 0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plane, gray.Pix) {
		t.Errorf("expected TIFF plane %v, got %v\n", gray.Pix, plane)
	}
}

func TestRunShortFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.raw")
	writeFile(t, path, make([]byte, 7))
	m := &Manifest{Arrays: []Array{{
		File:          path,
		Dims:          Size{X: 2, Y: 2, Z: 2},
		BytesPerPixel: 1,
		Layout:        LayoutStacks,
	}}}

	_, ts := server.OpenTest(t)
	repo := &access.RepositoryEndpoint{ID: "main", URL: ts.URL}
	if _, err := Run(context.Background(), access.New(), repo, m); !errors.Is(err, pixel.ErrBadAddress) {
		t.Errorf("expected short file to be a bad address, got %v\n", err)
	}
}
