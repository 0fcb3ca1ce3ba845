/*
Package importer creates sealed pixel arrays from local raw or TIFF files
described by a JSON or YAML manifest.
*/
package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Layouts of pixel data within a source file.
const (
	// LayoutStacks is raw samples ordered by t, then c, with each stack
	// holding all z planes.
	LayoutStacks = "stacks"

	// LayoutPlanes is raw samples ordered by t, then c, then z, one plane
	// at a time.  The bytes match LayoutStacks; conversions are per plane.
	LayoutPlanes = "planes"

	// LayoutTIFF is one TIFF directory per plane in z, c, t order.
	LayoutTIFF = "tiff"
)

const manifestSchema = `{
	"type": "object",
	"required": ["arrays"],
	"additionalProperties": false,
	"properties": {
		"repository": {"type": "string"},
		"owner": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"kind": {"type": "string"},
				"id": {"type": "string"}
			}
		},
		"arrays": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["file", "dims", "bytes_per_pixel", "layout"],
				"additionalProperties": false,
				"properties": {
					"name": {"type": "string"},
					"file": {"type": "string", "minLength": 1},
					"dims": {
						"type": "object",
						"required": ["x", "y"],
						"additionalProperties": false,
						"properties": {
							"x": {"type": "integer", "minimum": 1},
							"y": {"type": "integer", "minimum": 1},
							"z": {"type": "integer", "minimum": 1},
							"c": {"type": "integer", "minimum": 1},
							"t": {"type": "integer", "minimum": 1}
						}
					},
					"bytes_per_pixel": {"enum": [1, 2, 4]},
					"signed": {"type": "boolean"},
					"float": {"type": "boolean"},
					"big_endian": {"type": "boolean"},
					"offset": {"type": "integer", "minimum": 0},
					"layout": {"enum": ["stacks", "planes", "tiff"]}
				}
			}
		}
	}
}`

var schema = jsonschema.MustCompileString("manifest.json", manifestSchema)

// Manifest lists the arrays to import into one repository.
type Manifest struct {
	Repository string  `json:"repository"`
	Owner      Owner   `json:"owner"`
	Arrays     []Array `json:"arrays"`
}

type Owner struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Array describes one pixel array and where its samples come from.
type Array struct {
	Name          string `json:"name"`
	File          string `json:"file"`
	Dims          Size   `json:"dims"`
	BytesPerPixel int    `json:"bytes_per_pixel"`
	Signed        bool   `json:"signed"`
	Float         bool   `json:"float"`
	BigEndian     bool   `json:"big_endian"`
	Offset        int64  `json:"offset"`
	Layout        string `json:"layout"`
}

// Size gives array extents.  Missing z, c and t are 1.
type Size struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
	C int `json:"c"`
	T int `json:"t"`
}

// PixelDims returns the array dimensions.
func (a Array) PixelDims() pixel.Dims {
	d := pixel.Dims{X: a.Dims.X, Y: a.Dims.Y, Z: a.Dims.Z, C: a.Dims.C, T: a.Dims.T, BytesPerPixel: a.BytesPerPixel}
	for _, v := range []*int{&d.Z, &d.C, &d.T} {
		if *v == 0 {
			*v = 1
		}
	}
	return d
}

func (a Array) String() string {
	name := a.Name
	if name == "" {
		name = filepath.Base(a.File)
	}
	return fmt.Sprintf("%s (%s, %s layout)", name, a.PixelDims(), a.Layout)
}

// Parse validates and decodes a JSON or YAML manifest.
func Parse(data []byte, isYAML bool) (*Manifest, error) {
	if isYAML {
		var v interface{}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("bad YAML manifest: %v", err)
		}
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("can't convert YAML manifest to JSON: %v", err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("bad JSON manifest: %v", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for i, a := range m.Arrays {
		if !pixel.Classify(a.BytesPerPixel, a.Signed, a.Float).Valid() {
			return nil, fmt.Errorf("array %d: %w: %d bytes per pixel, signed %t, float %t",
				i, pixel.ErrInvalidFormat, a.BytesPerPixel, a.Signed, a.Float)
		}
	}
	return &m, nil
}

// Load reads a manifest file.  Files ending in .yaml or .yml are YAML.
// Relative source file paths are taken relative to the manifest's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	m, err := Parse(data, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	dir := filepath.Dir(path)
	for i := range m.Arrays {
		if m.Arrays[i].File, err = pixel.ConvertToAbsolute(m.Arrays[i].File, dir); err != nil {
			return nil, err
		}
	}
	return m, nil
}
