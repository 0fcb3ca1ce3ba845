package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/wire"
)

// Session issues addressed pixel calls through one wire client.
type Session struct {
	// mu serializes calls; only one request is in flight at a time.
	mu     sync.Mutex
	client *wire.Client

	// cache holds read results.  Reads only succeed on sealed, immutable
	// arrays so entries never go stale.
	cache *freecache.Cache

	infoMu sync.RWMutex
	known  map[pixel.PixelsID]pixel.Info
}

type Option func(*Session)

// WithReadCache caches read results in roughly numBytes of memory.  Results
// larger than 1/1024 of the cache are not cached.
func WithReadCache(numBytes int) Option {
	return func(s *Session) {
		if numBytes > 0 {
			s.cache = freecache.NewCache(numBytes)
			pixel.Debugf("Created read cache of %s\n", humanize.Bytes(uint64(numBytes)))
		}
	}
}

// New returns a session over the given client.
func New(client *wire.Client, opts ...Option) *Session {
	s := &Session{
		client: client,
		known:  make(map[pixel.PixelsID]pixel.Info),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Client() *wire.Client {
	return s.client
}

func (s *Session) String() string {
	return fmt.Sprintf("pixel session @ %s", s.client.Endpoint())
}

// do performs one call while holding the session lock.
func (s *Session) do(ctx context.Context, req wire.Request) (*wire.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Do(ctx, req)
}

func (s *Session) info(id pixel.PixelsID) (pixel.Info, bool) {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	info, found := s.known[id]
	return info, found
}

func (s *Session) remember(id pixel.PixelsID, info pixel.Info) {
	s.infoMu.Lock()
	s.known[id] = info
	s.infoMu.Unlock()
}

func (s *Session) markSealed(id pixel.PixelsID) {
	s.infoMu.Lock()
	if info, found := s.known[id]; found && !info.Sealed {
		info.Sealed = true
		s.known[id] = info
	}
	s.infoMu.Unlock()
}

// knownDims returns the dims of an array this session has seen, or zero Dims.
func (s *Session) knownDims(id pixel.PixelsID) pixel.Dims {
	info, _ := s.info(id)
	return info.Dims
}

func pixelsFields(id pixel.PixelsID) pixel.Fields {
	return pixel.Fields{}.Add("PixelsID", id.String())
}

// Create makes a new writable pixel array.  Sizes must be positive and the
// encoding must classify to a valid pixel type, else pixel.ErrInvalidFormat
// is returned before any network call.
func (s *Session) Create(ctx context.Context, dims pixel.Dims, signed, float bool) (pixel.PixelsID, error) {
	if err := dims.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", pixel.ErrInvalidFormat, err)
	}
	ptype := pixel.Classify(dims.BytesPerPixel, signed, float)
	if !ptype.Valid() {
		return 0, fmt.Errorf("%w: %d bytes per pixel, signed %t, float %t",
			pixel.ErrInvalidFormat, dims.BytesPerPixel, signed, float)
	}
	fields := pixel.Fields{}.Add("Dims", dims.Field()).AddBool("IsSigned", signed).AddBool("IsFloat", float)
	resp, err := s.do(ctx, wire.Request{Method: "NewPixels", Fields: fields})
	if err != nil {
		return 0, err
	}
	id, err := readID(resp)
	if err != nil {
		return 0, err
	}
	s.remember(id, pixel.Info{Dims: dims, Signed: signed, Float: float})
	pixel.Debugf("Created %s pixels %d (%s)\n", ptype, id, dims)
	return id, nil
}

// Describe returns the dimensions, encoding and lifecycle state of an array.
func (s *Session) Describe(ctx context.Context, id pixel.PixelsID) (pixel.Info, error) {
	resp, err := s.do(ctx, wire.Request{Method: "PixelsInfo", Fields: pixelsFields(id)})
	if err != nil {
		return pixel.Info{}, err
	}
	var info pixel.Info
	err = resp.Expect(
		wire.Key("Dims"),
		wire.Int("X", &info.X), wire.Int("Y", &info.Y), wire.Int("Z", &info.Z),
		wire.Int("C", &info.C), wire.Int("T", &info.T), wire.Int("BytesPerPixel", &info.BytesPerPixel),
		wire.Key("Finished"), wire.Bool("Finished", &info.Sealed),
		wire.Key("Signed"), wire.Bool("Signed", &info.Signed),
		wire.Key("Float"), wire.Bool("Float", &info.Float),
	)
	if err != nil {
		return pixel.Info{}, err
	}
	s.remember(id, info)
	return info, nil
}

// IsSealed returns true if the array no longer accepts writes.
func (s *Session) IsSealed(ctx context.Context, id pixel.PixelsID) (bool, error) {
	info, err := s.Describe(ctx, id)
	if err != nil {
		return false, err
	}
	return info.Sealed, nil
}

// Digest returns the hex SHA-1 of the array contents.  It is only meaningful
// once the array is sealed.
func (s *Session) Digest(ctx context.Context, id pixel.PixelsID) (string, error) {
	resp, err := s.do(ctx, wire.Request{Method: "PixelsSHA1", Fields: pixelsFields(id)})
	if err != nil {
		return "", err
	}
	var sha1 string
	if err := resp.Expect(wire.Key("SHA1"), wire.Text("SHA1", &sha1)); err != nil {
		return "", err
	}
	return sha1, nil
}

// Seal transitions the array from Writable to Sealed and returns the id the
// caller must use from now on, which may differ from the given id.
func (s *Session) Seal(ctx context.Context, id pixel.PixelsID) (pixel.PixelsID, error) {
	resp, err := s.do(ctx, wire.Request{Method: "FinishPixels", Fields: pixelsFields(id)})
	if err != nil {
		return 0, err
	}
	newID, err := readID(resp)
	if err != nil {
		return 0, err
	}
	s.infoMu.Lock()
	if info, found := s.known[id]; found {
		info.Sealed = true
		s.known[newID] = info
		if newID != id {
			delete(s.known, id)
		}
	}
	s.infoMu.Unlock()
	if newID != id {
		pixel.Infof("Pixels %d were sealed as existing pixels %d\n", id, newID)
	}
	return newID, nil
}

func readID(resp *wire.Response) (pixel.PixelsID, error) {
	var id int64
	if err := resp.Expect(wire.Key("ID"), wire.Int("ID", &id)); err != nil {
		return 0, err
	}
	return pixel.PixelsID(id), nil
}

func readCount(resp *wire.Response) (int64, error) {
	var n int64
	if err := resp.Expect(wire.Key("Bytes"), wire.Int("Bytes", &n)); err != nil {
		return 0, err
	}
	return n, nil
}
