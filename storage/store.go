/*
Package storage persists pixel arrays in a Badger key-value store.

Each array has a JSON metadata record and one compressed value per plane.
Planes are kept little-endian and a plane that was never written reads as
zeros.  Sealed arrays are indexed by content digest so identical arrays
share one id.
*/
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/pixel"
)

const (
	metaPrefix  byte = 'm'
	planePrefix byte = 'p'
	sha1Prefix  byte = 's'

	// numLocks is the number of mutexes that serialize mutations of arrays.
	numLocks = 64

	// seqBandwidth is the number of ids leased from badger at a time.
	seqBandwidth = 64

	syncInterval = 30 * time.Second
)

var (
	pixelsSeqKey = []byte("q|pixels")
	filesSeqKey  = []byte("q|files")
)

// Meta is the stored record of one pixel array.
type Meta struct {
	ID pixel.PixelsID
	pixel.Info
	SHA1    string `json:",omitempty"`
	Created time.Time
}

// Store holds pixel arrays.
type Store struct {
	path     string
	db       *badger.DB
	compress pixel.Compression
	checksum pixel.Checksum

	// maxPlaneBytes bounds one plane, which is the unit held in memory
	// by partial writes.
	maxPlaneBytes int64

	pixelsSeq *badger.Sequence
	filesSeq  *badger.Sequence

	locks    [numLocks]sync.Mutex
	finishMu sync.Mutex

	stopSyncCh chan struct{}
	syncDone   chan struct{}
}

// Open returns a store using the given configuration.  An empty path keeps
// everything in memory.
func Open(c config.StoreConfig) (*Store, error) {
	compress, err := pixel.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	var opts badger.Options
	if c.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if _, err := os.Stat(c.Path); os.IsNotExist(err) {
			pixel.Infof("Database not already at path (%s). Creating directory...\n", c.Path)
			if err := os.MkdirAll(c.Path, 0744); err != nil {
				return nil, fmt.Errorf("can't make directory at %s: %v", c.Path, err)
			}
		}
		opts = badger.DefaultOptions(c.Path)
	}
	opts = opts.WithLogger(pixel.LevelLogger{}).WithNumVersionsToKeep(1).WithSyncWrites(false)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	maxPlaneMB := c.MaxPlaneMB
	if maxPlaneMB <= 0 {
		maxPlaneMB = config.DefaultMaxPlaneMB
	}
	s := &Store{
		path:          c.Path,
		db:            db,
		compress:      compress,
		maxPlaneBytes: int64(maxPlaneMB) * pixel.Mega,
	}
	if c.Checksum {
		s.checksum = pixel.CRC32
	}
	if s.pixelsSeq, err = db.GetSequence(pixelsSeqKey, seqBandwidth); err != nil {
		db.Close()
		return nil, err
	}
	if s.filesSeq, err = db.GetSequence(filesSeqKey, seqBandwidth); err != nil {
		s.pixelsSeq.Release()
		db.Close()
		return nil, err
	}
	if c.Path != "" {
		s.stopSyncCh = make(chan struct{})
		s.syncDone = make(chan struct{})
		go s.syncPeriodically()
	}
	pixel.Infof("Opened %s with %s compression\n", s, compress)
	return s, nil
}

// Periodically sync to prevent too many writes from being buffered
// if server crashes.
func (s *Store) syncPeriodically() {
	defer close(s.syncDone)
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSyncCh:
			return
		case <-ticker.C:
			if err := s.db.Sync(); err != nil {
				pixel.Errorf("Unable to sync %s: %v\n", s, err)
			}
		}
	}
}

func (s *Store) String() string {
	if s.path == "" {
		return "in-memory pixel store"
	}
	return fmt.Sprintf("pixel store @ %s", s.path)
}

// Close releases id sequences and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.stopSyncCh != nil {
		close(s.stopSyncCh)
		<-s.syncDone
	}
	var errs []error
	errs = append(errs, s.pixelsSeq.Release(), s.filesSeq.Release(), s.db.Close())
	s.db = nil
	pixel.Infof("Closed %s\n", s)
	return errors.Join(errs...)
}

func (s *Store) lock(id pixel.PixelsID) *sync.Mutex {
	return &s.locks[uint64(id)%numLocks]
}

func metaKey(id pixel.PixelsID) []byte {
	k := make([]byte, 9)
	k[0] = metaPrefix
	binary.BigEndian.PutUint64(k[1:], uint64(id))
	return k
}

func planeKeyPrefix(id pixel.PixelsID) []byte {
	k := make([]byte, 9, 21)
	k[0] = planePrefix
	binary.BigEndian.PutUint64(k[1:], uint64(id))
	return k
}

// planeKey orders planes by t, then c, then z.
func planeKey(id pixel.PixelsID, z, c, t int) []byte {
	k := planeKeyPrefix(id)
	k = binary.BigEndian.AppendUint32(k, uint32(t))
	k = binary.BigEndian.AppendUint32(k, uint32(c))
	return binary.BigEndian.AppendUint32(k, uint32(z))
}

func sha1Key(digest string, info pixel.Info) []byte {
	return []byte(fmt.Sprintf("%c%s|%s|%s", sha1Prefix, digest, info.Dims.Field(), info.Type()))
}

// NextFileID returns an unused id for an uploaded file.
func (s *Store) NextFileID() (pixel.FileID, error) {
	n, err := s.filesSeq.Next()
	if err != nil {
		return 0, err
	}
	return pixel.FileID(n + 1), nil
}

// planeFits reports whether one XY plane of d is at most limit bytes.
// The products are checked by division so absurd sizes can't overflow.
func planeFits(d pixel.Dims, limit int64) bool {
	b := int64(d.BytesPerPixel)
	if int64(d.X) > limit/b {
		return false
	}
	return int64(d.Y) <= limit/(int64(d.X)*b)
}

// Create adds a new writable array and returns its metadata.
func (s *Store) Create(dims pixel.Dims, signed, float bool) (Meta, error) {
	if err := dims.Validate(); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", pixel.ErrInvalidFormat, err)
	}
	info := pixel.Info{Dims: dims, Signed: signed, Float: float}
	if !info.Type().Valid() {
		return Meta{}, fmt.Errorf("%w: %d bytes per pixel, signed %t, float %t",
			pixel.ErrInvalidFormat, dims.BytesPerPixel, signed, float)
	}
	if !planeFits(dims, s.maxPlaneBytes) {
		return Meta{}, fmt.Errorf("%w: planes of %s exceed the %s limit", pixel.ErrInvalidFormat,
			dims, humanize.IBytes(uint64(s.maxPlaneBytes)))
	}
	n, err := s.pixelsSeq.Next()
	if err != nil {
		return Meta{}, err
	}
	m := Meta{ID: pixel.PixelsID(n + 1), Info: info, Created: time.Now()}
	if err := s.putMeta(m); err != nil {
		return Meta{}, err
	}
	pixel.Debugf("Created pixels %d: %s, %s\n", m.ID, info, humanize.Bytes(uint64(dims.TotalBytes())))
	return m, nil
}

func (s *Store) putMeta(m Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(m.ID), data)
	})
}

// Meta returns the metadata of an array or pixel.ErrNotFound.
func (s *Store) Meta(id pixel.PixelsID) (Meta, error) {
	var m Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: pixels %d", pixel.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	return m, err
}

// Digest returns the hex SHA-1 of a sealed array.
func (s *Store) Digest(id pixel.PixelsID) (string, error) {
	m, err := s.Meta(id)
	if err != nil {
		return "", err
	}
	if !m.Sealed {
		return "", fmt.Errorf("%w: pixels %d are not finished", pixel.ErrNotReadable, id)
	}
	return m.SHA1, nil
}

func binaryID(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
