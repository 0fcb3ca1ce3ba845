/*
	This file dispatches protocol calls by their Method field.
*/

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/wire"
)

// errBadRequest marks malformed calls.
var errBadRequest = errors.New("bad request")

type handlerFunc func(s *Server, w http.ResponseWriter, req *request) error

var handlers map[string]handlerFunc

func init() {
	handlers = map[string]handlerFunc{
		"NewPixels":    newPixels,
		"PixelsInfo":   pixelsInfo,
		"PixelsSHA1":   pixelsSHA1,
		"FinishPixels": finishPixels,
		"ConvertTIFF":  convertTIFF,
		"UploadFile":   uploadFile,
		"FileInfo":     fileInfo,
		"ReadFile":     readFile,
		"DeleteFile":   deleteFile,
	}
	for _, suffix := range []string{"Pixels", "Stack", "Plane", "ROI"} {
		handlers["Get"+suffix] = getPixels
		handlers["Set"+suffix] = setPixels
	}
	for _, suffix := range []string{"Stack", "Plane", "Rows"} {
		handlers["Convert"+suffix] = convertRaw
	}
}

// request is one parsed protocol call.
type request struct {
	*http.Request
	method   string
	activity Activity

	// publish is set by calls that change state.
	publish bool
}

func (r *request) field(name string) (string, error) {
	if v, found := r.MultipartForm.Value[name]; found && len(v) != 0 {
		return v[0], nil
	}
	return "", fmt.Errorf("%w: %s requires field %s", errBadRequest, r.method, name)
}

func (r *request) int(name string) (int64, error) {
	s, err := r.field(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %s=%q is not an integer", errBadRequest, name, s)
	}
	return v, nil
}

// bool parses "1" or "0".  A missing field is false.
func (r *request) bool(name string) (bool, error) {
	s := r.FormValue(name)
	switch s {
	case "", "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: field %s=%q is not 0 or 1", errBadRequest, name, s)
	}
}

func (r *request) pixelsID() (pixel.PixelsID, error) {
	v, err := r.int("PixelsID")
	if err != nil {
		return 0, err
	}
	r.activity.PixelsID = pixel.PixelsID(v)
	return pixel.PixelsID(v), nil
}

func (r *request) fileID() (pixel.FileID, error) {
	v, err := r.int("FileID")
	if err != nil {
		return 0, err
	}
	r.activity.FileID = pixel.FileID(v)
	return pixel.FileID(v), nil
}

// address parses the address named by the method's suffix after prefix.
func (r *request) address(prefix string) (pixel.Address, error) {
	return pixel.ParseAddress(strings.TrimPrefix(r.method, prefix), r.FormValue)
}

func (r *request) part(name string) ([]byte, string, error) {
	f, header, err := r.FormFile(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s requires a %s part: %v", errBadRequest, r.method, name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	return data, header.Filename, err
}

func (s *Server) protocolHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := &request{Request: r}
	maxMB := s.config.MaxUploadMB
	if maxMB <= 0 {
		maxMB = DefaultMaxUploadMB
	}
	if err := r.ParseMultipartForm(int64(maxMB) * pixel.Mega); err != nil {
		writeError(w, req, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req.method = r.FormValue("Method")
	req.activity = Activity{Time: start, User: userFromContext(r.Context()), Method: req.method}
	h, found := handlers[req.method]
	if !found {
		writeError(w, req, fmt.Errorf("%w: unknown method %q", errBadRequest, req.method))
		return
	}
	if err := h(s, w, req); err != nil {
		writeError(w, req, err)
		return
	}
	req.activity.Duration = time.Since(start)
	if req.publish {
		s.events.Publish(req.activity)
	}
	if pixel.Verbose {
		pixel.Debugf("%s from %s finished in %s\n", req.method, r.RemoteAddr, req.activity.Duration)
	}
}

// writeError maps lifecycle violations to 409, unknown ids to 404 and
// malformed calls to 400.
func writeError(w http.ResponseWriter, req *request, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, pixel.ErrNotWritable):
		status = http.StatusConflict
		msg = pixel.ReasonNotWritable + ": " + msg
	case errors.Is(err, pixel.ErrNotReadable):
		status = http.StatusConflict
		msg = pixel.ReasonNotReadable + ": " + msg
	case errors.Is(err, pixel.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, pixel.ErrBadAddress), errors.Is(err, pixel.ErrInvalidFormat):
		status = http.StatusBadRequest
	default:
		pixel.Errorf("%s failed: %v\n", req.method, err)
	}
	http.Error(w, strings.ReplaceAll(msg, "\n", " "), status)
}

func writeTokens(w http.ResponseWriter, enc *wire.Encoder) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := w.Write(enc.Bytes())
	return err
}

func writeRaw(w http.ResponseWriter, data []byte) error {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, err := w.Write(data)
	return err
}

func newPixels(s *Server, w http.ResponseWriter, req *request) error {
	dimsStr, err := req.field("Dims")
	if err != nil {
		return err
	}
	dims, err := pixel.ParseDims(dimsStr)
	if err != nil {
		return fmt.Errorf("%w: %v", pixel.ErrInvalidFormat, err)
	}
	signed, err := req.bool("IsSigned")
	if err != nil {
		return err
	}
	float, err := req.bool("IsFloat")
	if err != nil {
		return err
	}
	m, err := s.store.Create(dims, signed, float)
	if err != nil {
		return err
	}
	req.activity.PixelsID = m.ID
	req.publish = true
	return writeTokens(w, new(wire.Encoder).Line("ID", uint64(m.ID)))
}

func pixelsInfo(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.pixelsID()
	if err != nil {
		return err
	}
	m, err := s.store.Meta(id)
	if err != nil {
		return err
	}
	d := m.Dims
	enc := new(wire.Encoder).
		Line("Dims", d.X, d.Y, d.Z, d.C, d.T, d.BytesPerPixel).
		Line("Finished", m.Sealed).
		Line("Signed", m.Signed).
		Line("Float", m.Float)
	return writeTokens(w, enc)
}

func pixelsSHA1(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.pixelsID()
	if err != nil {
		return err
	}
	digest, err := s.store.Digest(id)
	if err != nil {
		return err
	}
	return writeTokens(w, new(wire.Encoder).Line("SHA1", digest))
}

func finishPixels(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.pixelsID()
	if err != nil {
		return err
	}
	newID, err := s.store.Finish(id)
	if err != nil {
		return err
	}
	req.activity.NewID = newID
	req.publish = true
	return writeTokens(w, new(wire.Encoder).Line("ID", uint64(newID)))
}

func getPixels(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.pixelsID()
	if err != nil {
		return err
	}
	bigEndian, err := req.bool("BigEndian")
	if err != nil {
		return err
	}
	addr, err := req.address("Get")
	if err != nil {
		return err
	}
	data, err := s.store.Read(id, addr, bigEndian)
	if err != nil {
		return err
	}
	return writeRaw(w, data)
}

func setPixels(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.pixelsID()
	if err != nil {
		return err
	}
	bigEndian, err := req.bool("BigEndian")
	if err != nil {
		return err
	}
	addr, err := req.address("Set")
	if err != nil {
		return err
	}
	data, _, err := req.part("Pixels")
	if err != nil {
		return err
	}
	n, err := s.store.Write(id, addr, data, bigEndian)
	if err != nil {
		return err
	}
	req.activity.Bytes = n
	req.publish = true
	return writeTokens(w, new(wire.Encoder).Line("Bytes", n))
}

// writableInfo returns the shape and type of an array that still accepts writes.
func (s *Server) writableInfo(id pixel.PixelsID) (pixel.Info, error) {
	m, err := s.store.Meta(id)
	if err != nil {
		return pixel.Info{}, err
	}
	if m.Sealed {
		return pixel.Info{}, fmt.Errorf("%w: pixels %d are finished", pixel.ErrNotWritable, id)
	}
	return m.Info, nil
}

// tiffSampleFormat is the TIFF SampleFormat value matching the pixel type.
func tiffSampleFormat(info pixel.Info) int {
	switch {
	case info.Float:
		return 3
	case info.Signed:
		return 2
	}
	return 1
}

func convertRaw(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.pixelsID()
	if err != nil {
		return err
	}
	fileID, err := req.fileID()
	if err != nil {
		return err
	}
	offset, err := req.int("Offset")
	if err != nil {
		return err
	}
	bigEndian, err := req.bool("BigEndian")
	if err != nil {
		return err
	}
	addr, err := req.address("Convert")
	if err != nil {
		return err
	}
	info, err := s.writableInfo(id)
	if err != nil {
		return err
	}
	dims := info.Dims
	if err := addr.Validate(dims); err != nil {
		return err
	}
	data, err := s.files.Read(req.Context(), fileID, offset, pixel.NumBytes(addr, dims))
	if err != nil {
		return err
	}
	n, err := s.store.Write(id, addr, data, bigEndian)
	if err != nil {
		return err
	}
	req.activity.Bytes = n
	req.publish = true
	return writeTokens(w, new(wire.Encoder).Line("Bytes", n))
}

func convertTIFF(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.pixelsID()
	if err != nil {
		return err
	}
	fileID, err := req.fileID()
	if err != nil {
		return err
	}
	dir, err := req.int("TIFFDir")
	if err != nil {
		return err
	}
	addr, err := pixel.ParseAddress("Plane", req.FormValue)
	if err != nil {
		return err
	}
	info, err := s.writableInfo(id)
	if err != nil {
		return err
	}
	dims := info.Dims
	if err := addr.Validate(dims); err != nil {
		return err
	}
	r, _, err := s.files.ReaderAt(req.Context(), fileID)
	if err != nil {
		return err
	}
	img, data, err := readTIFFImage(r, int(dir))
	if err != nil {
		return err
	}
	if img.Width != dims.X || img.Height != dims.Y || img.BitsPerSample != 8*dims.BytesPerPixel {
		return fmt.Errorf("%w: TIFF directory %d is %dx%d at %d bits, pixels %d are %dx%d at %d bits",
			errBadRequest, dir, img.Width, img.Height, img.BitsPerSample, id, dims.X, dims.Y, 8*dims.BytesPerPixel)
	}
	if expected := tiffSampleFormat(info); img.SampleFormat != expected {
		return fmt.Errorf("%w: TIFF directory %d has sample format %d, pixels %d of type %s need %d",
			errBadRequest, dir, img.SampleFormat, id, info.Type(), expected)
	}
	n, err := s.store.Write(id, addr, data, img.BigEndian)
	if err != nil {
		return err
	}
	req.activity.Bytes = n
	req.publish = true
	return writeTokens(w, new(wire.Encoder).Line("Bytes", n))
}

func uploadFile(s *Server, w http.ResponseWriter, req *request) error {
	f, header, err := req.FormFile("File")
	if err != nil {
		return fmt.Errorf("%w: UploadFile requires a File part: %v", errBadRequest, err)
	}
	defer f.Close()
	meta, err := s.files.Upload(req.Context(), header.Filename, f)
	if err != nil {
		return err
	}
	req.activity.FileID = meta.ID
	req.activity.Bytes = meta.Length
	req.publish = true
	pixel.Debugf("Uploaded file %d %q (%s)\n", meta.ID, meta.Name, humanize.Bytes(uint64(meta.Length)))
	return writeTokens(w, new(wire.Encoder).Line("ID", uint64(meta.ID)))
}

func fileInfo(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.fileID()
	if err != nil {
		return err
	}
	meta, err := s.files.Info(id)
	if err != nil {
		return err
	}
	return writeTokens(w, new(wire.Encoder).Line("Length", meta.Length).Line("SHA1", meta.SHA1))
}

func readFile(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.fileID()
	if err != nil {
		return err
	}
	offset, err := req.int("Offset")
	if err != nil {
		return err
	}
	length, err := req.int("Length")
	if err != nil {
		return err
	}
	data, err := s.files.Read(req.Context(), id, offset, length)
	if err != nil {
		return err
	}
	return writeRaw(w, data)
}

func deleteFile(s *Server, w http.ResponseWriter, req *request) error {
	id, err := req.fileID()
	if err != nil {
		return err
	}
	if err := s.files.Delete(req.Context(), id); err != nil {
		return err
	}
	req.publish = true
	return writeTokens(w, new(wire.Encoder).Line("Deleted", true))
}
