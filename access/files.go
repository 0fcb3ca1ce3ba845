package access

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/wire"
	"golang.org/x/sync/errgroup"
)

// UploadAndRegister uploads a local file and verifies the server's digest
// against one computed while the file was sent.
func (f *Facade) UploadAndRegister(ctx context.Context, repo *RepositoryEndpoint, owner Owner, localPath string) (*FileDescriptor, error) {
	s, err := f.ResolveSession(ctx, repo)
	if err != nil {
		return nil, err
	}
	timedLog := pixel.NewTimeLog()
	h := sha1.New()
	payload := wire.LocalFile(localPath).Tee(h)
	id, err := s.Upload(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("upload %s to repository %s: %w", localPath, repo.ID, err)
	}
	fd := &FileDescriptor{
		Repository: repo,
		Owner:      owner,
		FileID:     id,
		Name:       payload.Name(),
		SHA1:       hex.EncodeToString(h.Sum(nil)),
	}
	length, remote, err := s.FileInfo(ctx, id)
	if err != nil {
		return nil, fd.wrap("describe", err)
	}
	if remote != fd.SHA1 {
		return nil, fd.wrap("verify", &pixel.ProtocolError{
			Method:   "FileInfo",
			Step:     "SHA1",
			Expected: fd.SHA1,
			Actual:   remote,
		})
	}
	fd.Size = length
	timedLog.Debugf("Uploaded %s as %s (%s)", localPath, fd, humanize.Bytes(uint64(length)))
	return fd, nil
}

// UploadAll uploads files concurrently and returns descriptors in path order.
// Calls within one repository still go one at a time through its session.
func (f *Facade) UploadAll(ctx context.Context, repo *RepositoryEndpoint, owner Owner, paths []string) ([]*FileDescriptor, error) {
	files := make([]*FileDescriptor, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if f.uploadConcurrency > 0 {
		g.SetLimit(f.uploadConcurrency)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			fd, err := f.UploadAndRegister(gctx, repo, owner, path)
			if err != nil {
				return err
			}
			files[i] = fd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// ReadFile returns length bytes of an uploaded file from offset.
func (f *Facade) ReadFile(ctx context.Context, file *FileDescriptor, offset, length int64) ([]byte, error) {
	s, err := f.ResolveSession(ctx, file.Repository)
	if err != nil {
		return nil, err
	}
	data, err := s.ReadFile(ctx, file.FileID, offset, length)
	return data, file.wrap("read", err)
}

// DeleteFile removes an uploaded file.
func (f *Facade) DeleteFile(ctx context.Context, file *FileDescriptor) error {
	s, err := f.ResolveSession(ctx, file.Repository)
	if err != nil {
		return err
	}
	return file.wrap("delete", s.DeleteFile(ctx, file.FileID))
}
