/*
	This file keeps uploaded files in a gocloud blob bucket.
*/

package server

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/storage"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Supported bucket URL schemes: mem://, file:// and gs://.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
)

// Files stores uploaded file contents in a bucket and their records in the
// pixel store.
type Files struct {
	bucket *blob.Bucket
	store  *storage.Store
}

// OpenFiles opens the bucket at a gocloud URL such as "mem://" or
// "file:///data/uploads".
func OpenFiles(ctx context.Context, bucketURL string, store *storage.Store) (*Files, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("can't open files bucket %q: %v", bucketURL, err)
	}
	return &Files{bucket: bucket, store: store}, nil
}

func (f *Files) Close() error {
	return f.bucket.Close()
}

func fileKey(id pixel.FileID) string {
	return fmt.Sprintf("uploads/%020d", uint64(id))
}

func bucketError(id pixel.FileID, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: contents of file %d", pixel.ErrNotFound, id)
	}
	return err
}

// Upload copies r into the bucket, computing its SHA-1 along the way.
func (f *Files) Upload(ctx context.Context, name string, r io.Reader) (storage.FileMeta, error) {
	id, err := f.store.NextFileID()
	if err != nil {
		return storage.FileMeta{}, err
	}
	timedLog := pixel.NewTimeLog()

	// Canceling the writer's context before Close discards a partial upload.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := f.bucket.NewWriter(wctx, fileKey(id), &blob.WriterOptions{
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"name": name},
	})
	if err != nil {
		return storage.FileMeta{}, err
	}
	h := sha1.New()
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		cancel()
		w.Close()
		return storage.FileMeta{}, fmt.Errorf("upload of %q failed after %s: %v", name, humanize.Bytes(uint64(n)), err)
	}
	if err := w.Close(); err != nil {
		return storage.FileMeta{}, err
	}
	meta := storage.FileMeta{
		ID:      id,
		Name:    name,
		Length:  n,
		SHA1:    hex.EncodeToString(h.Sum(nil)),
		Created: time.Now(),
	}
	if err := f.store.PutFile(meta); err != nil {
		return storage.FileMeta{}, err
	}
	timedLog.Debugf("Stored file %d %q, %s", id, name, humanize.Bytes(uint64(n)))
	return meta, nil
}

// Info returns the record of an uploaded file.
func (f *Files) Info(id pixel.FileID) (storage.FileMeta, error) {
	return f.store.File(id)
}

// Read returns length bytes from offset.  A negative length reads to the end.
func (f *Files) Read(ctx context.Context, id pixel.FileID, offset, length int64) ([]byte, error) {
	meta, err := f.store.File(id)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset > meta.Length {
		return nil, fmt.Errorf("%w: offset %d outside file %d of %d bytes", errBadRequest, offset, id, meta.Length)
	}
	if length < 0 {
		length = meta.Length - offset
	}
	if offset+length > meta.Length {
		return nil, fmt.Errorf("%w: file %d has %d bytes, need %d from offset %d",
			errBadRequest, id, meta.Length, length, offset)
	}
	if length == 0 {
		return []byte{}, nil
	}
	r, err := f.bucket.NewRangeReader(ctx, fileKey(id), offset, length, nil)
	if err != nil {
		return nil, bucketError(id, err)
	}
	defer r.Close()
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReaderAt returns random access to an uploaded file.
func (f *Files) ReaderAt(ctx context.Context, id pixel.FileID) (io.ReaderAt, int64, error) {
	meta, err := f.store.File(id)
	if err != nil {
		return nil, 0, err
	}
	return &bucketReaderAt{ctx: ctx, bucket: f.bucket, id: id, size: meta.Length}, meta.Length, nil
}

// Delete removes an uploaded file's contents and record.
func (f *Files) Delete(ctx context.Context, id pixel.FileID) error {
	if _, err := f.store.File(id); err != nil {
		return err
	}
	if err := f.bucket.Delete(ctx, fileKey(id)); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return f.store.DeleteFile(id)
}

type bucketReaderAt struct {
	ctx    context.Context
	bucket *blob.Bucket
	id     pixel.FileID
	size   int64
}

func (b *bucketReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if off+length > b.size {
		length = b.size - off
	}
	r, err := b.bucket.NewRangeReader(b.ctx, fileKey(b.id), off, length, nil)
	if err != nil {
		return 0, bucketError(b.id, err)
	}
	defer r.Close()
	n, err := io.ReadFull(r, p[:length])
	if err == nil && int(length) < len(p) {
		err = io.EOF
	}
	return n, err
}
