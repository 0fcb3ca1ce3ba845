/*
Package access is the facade used by import and processing code to create,
fill, seal and read remote pixel arrays and to upload conversion sources.

A Facade keeps one session per repository.  Descriptors carry the state a
caller needs and are updated in place as arrays are sealed.
*/
package access

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/session"
	"github.com/janelia-flyem/pixaccess/wire"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultThumbnailCache is the number of encoded thumbnails kept.
	DefaultThumbnailCache = 256

	// DefaultUploadConcurrency bounds UploadAll.
	DefaultUploadConcurrency = 4
)

// Facade resolves repositories to sessions and performs array operations.
type Facade struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	group    singleflight.Group

	clientOpts  []wire.Option
	sessionOpts []session.Option

	thumbMu sync.Mutex
	thumbs  *lru.Cache

	uploadConcurrency int
}

type Option func(*Facade)

// WithClientOptions applies options to every wire client created.
func WithClientOptions(opts ...wire.Option) Option {
	return func(f *Facade) { f.clientOpts = append(f.clientOpts, opts...) }
}

// WithSessionOptions applies options to every session created.
func WithSessionOptions(opts ...session.Option) Option {
	return func(f *Facade) { f.sessionOpts = append(f.sessionOpts, opts...) }
}

// WithThumbnailCache keeps up to n encoded thumbnails of sealed arrays.
func WithThumbnailCache(n int) Option {
	return func(f *Facade) { f.thumbs = lru.New(n) }
}

// WithUploadConcurrency bounds the number of simultaneous UploadAll uploads.
func WithUploadConcurrency(n int) Option {
	return func(f *Facade) { f.uploadConcurrency = n }
}

// ConfigOptions returns the options described by a [client] section.
func ConfigOptions(c config.ClientConfig) []Option {
	var opts []Option
	if c.ConnectTimeout > 0 {
		opts = append(opts, WithClientOptions(wire.WithConnectTimeout(c.ConnectTimeoutDuration())))
	}
	if c.CallTimeout > 0 {
		opts = append(opts, WithClientOptions(wire.WithCallTimeout(c.CallTimeoutDuration())))
	}
	if c.ReadCacheMB > 0 {
		opts = append(opts, WithSessionOptions(session.WithReadCache(c.ReadCacheMB*pixel.Mega)))
	}
	if c.ThumbnailCache > 0 {
		opts = append(opts, WithThumbnailCache(c.ThumbnailCache))
	}
	return opts
}

func New(opts ...Option) *Facade {
	f := &Facade{
		sessions:          make(map[string]*session.Session),
		thumbs:            lru.New(DefaultThumbnailCache),
		uploadConcurrency: DefaultUploadConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Facade) cachedSession(id string) (*session.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, found := f.sessions[id]
	return s, found
}

// ResolveSession returns the session for a repository, creating it on first
// use.  Concurrent first calls for one repository create a single session.
func (f *Facade) ResolveSession(ctx context.Context, repo *RepositoryEndpoint) (*session.Session, error) {
	if repo == nil || repo.ID == "" {
		return nil, fmt.Errorf("repository endpoint requires an id")
	}
	if s, found := f.cachedSession(repo.ID); found {
		return s, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err, _ := f.group.Do(repo.ID, func() (interface{}, error) {
		if s, found := f.cachedSession(repo.ID); found {
			return s, nil
		}
		opts := append([]wire.Option{wire.WithToken(repo.Token)}, f.clientOpts...)
		client, err := wire.NewClient(repo.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("repository %s: %w", repo.ID, err)
		}
		s := session.New(client, f.sessionOpts...)
		f.mu.Lock()
		f.sessions[repo.ID] = s
		f.mu.Unlock()
		pixel.Debugf("Opened %s for %s\n", s, repo)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

// NumSessions returns the number of repositories with open sessions.
func (f *Facade) NumSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *Facade) session(ctx context.Context, d *PixelArrayDescriptor) (*session.Session, error) {
	if d == nil || d.Repository == nil {
		return nil, fmt.Errorf("pixel array descriptor requires a repository")
	}
	return f.ResolveSession(ctx, d.Repository)
}

// CreateArray makes a new writable array in repo.
func (f *Facade) CreateArray(ctx context.Context, repo *RepositoryEndpoint, owner Owner, dims pixel.Dims, signed, float bool) (*PixelArrayDescriptor, error) {
	s, err := f.ResolveSession(ctx, repo)
	if err != nil {
		return nil, err
	}
	id, err := s.Create(ctx, dims, signed, float)
	if err != nil {
		return nil, fmt.Errorf("create pixels in repository %s: %w", repo.ID, err)
	}
	return &PixelArrayDescriptor{
		Repository: repo,
		Owner:      owner,
		PixelsID:   id,
		Dims:       dims,
		Signed:     signed,
		Float:      float,
		Type:       pixel.Classify(dims.BytesPerPixel, signed, float),
	}, nil
}

// Finish seals the array, adopting the id the server assigns, and records its
// digest in the descriptor.
func (f *Facade) Finish(ctx context.Context, d *PixelArrayDescriptor) error {
	if d.Sealed {
		return d.wrap("finish", pixel.ErrNotWritable)
	}
	s, err := f.session(ctx, d)
	if err != nil {
		return err
	}
	newID, err := s.Seal(ctx, d.PixelsID)
	if err != nil {
		return d.wrap("finish", err)
	}
	if newID != d.PixelsID {
		pixel.Infof("%s now identified as pixels %d\n", d, newID)
		d.PixelsID = newID
	}
	d.Sealed = true
	digest, err := s.Digest(ctx, newID)
	if err != nil {
		return d.wrap("digest", err)
	}
	d.SHA1 = digest
	return nil
}

// Refresh updates the descriptor from the server.
func (f *Facade) Refresh(ctx context.Context, d *PixelArrayDescriptor) error {
	s, err := f.session(ctx, d)
	if err != nil {
		return err
	}
	info, err := s.Describe(ctx, d.PixelsID)
	if err != nil {
		return d.wrap("describe", err)
	}
	d.Dims = info.Dims
	d.Signed = info.Signed
	d.Float = info.Float
	d.Type = info.Type()
	d.Sealed = info.Sealed
	if d.Sealed && d.SHA1 == "" {
		if d.SHA1, err = s.Digest(ctx, d.PixelsID); err != nil {
			return d.wrap("digest", err)
		}
	}
	return nil
}

// Describe returns a descriptor for an existing array.
func (f *Facade) Describe(ctx context.Context, repo *RepositoryEndpoint, owner Owner, id pixel.PixelsID) (*PixelArrayDescriptor, error) {
	d := &PixelArrayDescriptor{Repository: repo, Owner: owner, PixelsID: id}
	if err := f.Refresh(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
