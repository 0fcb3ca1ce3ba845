/*
	This file handles uploaded files that serve as conversion sources.
*/

package session

import (
	"context"

	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/wire"
)

func fileFields(id pixel.FileID) pixel.Fields {
	return pixel.Fields{}.Add("FileID", id.String())
}

// Upload sends a file to the pixel server and returns its file id.
func (s *Session) Upload(ctx context.Context, payload *wire.Payload) (pixel.FileID, error) {
	resp, err := s.do(ctx, wire.Request{Method: "UploadFile", Part: "File", Payload: payload})
	if err != nil {
		return 0, err
	}
	id, err := readID(resp)
	return pixel.FileID(id), err
}

// FileInfo returns the length and hex SHA-1 of an uploaded file.
func (s *Session) FileInfo(ctx context.Context, id pixel.FileID) (length int64, sha1 string, err error) {
	resp, err := s.do(ctx, wire.Request{Method: "FileInfo", Fields: fileFields(id)})
	if err != nil {
		return 0, "", err
	}
	err = resp.Expect(
		wire.Key("Length"), wire.Int("Length", &length),
		wire.Key("SHA1"), wire.Text("SHA1", &sha1),
	)
	return
}

// ReadFile returns length bytes of an uploaded file from offset.  A negative
// length reads to the end of the file.
func (s *Session) ReadFile(ctx context.Context, id pixel.FileID, offset, length int64) ([]byte, error) {
	fields := fileFields(id).AddInt("Offset", offset).AddInt("Length", length)
	resp, err := s.do(ctx, wire.Request{Method: "ReadFile", Fields: fields})
	if err != nil {
		return nil, err
	}
	return resp.Bytes(), nil
}

// DeleteFile removes an uploaded file.
func (s *Session) DeleteFile(ctx context.Context, id pixel.FileID) error {
	resp, err := s.do(ctx, wire.Request{Method: "DeleteFile", Fields: fileFields(id)})
	if err != nil {
		return err
	}
	var deleted bool
	return resp.Expect(wire.Key("Deleted"), wire.Bool("Deleted", &deleted))
}
