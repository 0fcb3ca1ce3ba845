package wire

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/janelia-flyem/pixaccess/pixel"
)

// Payload is the binary part of a write or upload request, sourced either from
// memory or from a local file.
type Payload struct {
	data []byte
	path string
	name string
	tee  io.Writer
}

// Bytes returns a payload backed by an in-memory buffer.
func Bytes(b []byte) *Payload {
	return &Payload{data: b, name: "pixels"}
}

// LocalFile returns a payload streamed from the file at path.
func LocalFile(path string) *Payload {
	return &Payload{path: path, name: filepath.Base(path)}
}

// Named sets the file name sent with the payload part.
func (p *Payload) Named(name string) *Payload {
	p.name = name
	return p
}

func (p *Payload) Name() string {
	return p.name
}

// Tee copies everything read from the payload to w, e.g. a hash computing a
// digest while the payload is sent.
func (p *Payload) Tee(w io.Writer) *Payload {
	p.tee = w
	return p
}

// Path returns the local file path or the empty string for in-memory payloads.
func (p *Payload) Path() string {
	return p.path
}

// Size returns the number of bytes in the payload.
func (p *Payload) Size() (int64, error) {
	if p.path == "" {
		return int64(len(p.data)), nil
	}
	fi, err := os.Stat(p.path)
	if err != nil {
		return 0, &pixel.LocalFileError{Path: p.path, Err: err}
	}
	return fi.Size(), nil
}

// Open returns a reader over the payload.  Local files that cannot be opened
// yield a *pixel.LocalFileError.
func (p *Payload) Open() (io.ReadCloser, error) {
	var rc io.ReadCloser
	if p.path == "" {
		rc = io.NopCloser(bytes.NewReader(p.data))
	} else {
		f, err := os.Open(p.path)
		if err != nil {
			return nil, &pixel.LocalFileError{Path: p.path, Err: err}
		}
		rc = f
	}
	if p.tee == nil {
		return rc, nil
	}
	return teeReadCloser{io.TeeReader(rc, p.tee), rc}, nil
}

type teeReadCloser struct {
	io.Reader
	io.Closer
}
