/*
	This file reads and writes addressed regions of stored planes.
*/

package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v3"
	"github.com/janelia-flyem/pixaccess/pixel"
)

// getPlane returns the decoded plane or nil if it was never written.
func (s *Store) getPlane(txn *badger.Txn, id pixel.PixelsID, z, c, t int) ([]byte, error) {
	item, err := txn.Get(planeKey(id, z, c, t))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Copy since uncompressed planes would otherwise alias txn memory.
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	plane, err := pixel.DeserializeData(val)
	return plane, err
}

// Read returns the samples within addr in the requested byte order.  The
// array must be sealed.
func (s *Store) Read(id pixel.PixelsID, addr pixel.Address, bigEndian bool) ([]byte, error) {
	m, err := s.Meta(id)
	if err != nil {
		return nil, err
	}
	if !m.Sealed {
		return nil, fmt.Errorf("%w: pixels %d are not finished", pixel.ErrNotReadable, id)
	}
	if err := addr.Validate(m.Dims); err != nil {
		return nil, err
	}
	d := m.Dims
	roi := addr.Bounds(d)
	nx, _, _, _, _ := roi.Size()
	rowBytes := nx * d.BytesPerPixel
	out := make([]byte, roi.NumPixels()*int64(d.BytesPerPixel))

	var pos int
	err = s.db.View(func(txn *badger.Txn) error {
		for t := roi.T0; t <= roi.T1; t++ {
			for c := roi.C0; c <= roi.C1; c++ {
				for z := roi.Z0; z <= roi.Z1; z++ {
					plane, err := s.getPlane(txn, id, z, c, t)
					if err != nil {
						return err
					}
					for y := roi.Y0; y <= roi.Y1; y++ {
						if plane != nil {
							start := (y*d.X + roi.X0) * d.BytesPerPixel
							copy(out[pos:pos+rowBytes], plane[start:start+rowBytes])
						}
						pos += rowBytes
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if bigEndian {
		if err := pixel.SwapBytes(out, d.BytesPerPixel); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Write stores data, which must be exactly the size of addr, into a writable
// array.  bigEndian gives the byte order of data.  It returns the number of
// bytes written.
func (s *Store) Write(id pixel.PixelsID, addr pixel.Address, data []byte, bigEndian bool) (int64, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	m, err := s.Meta(id)
	if err != nil {
		return 0, err
	}
	if m.Sealed {
		return 0, fmt.Errorf("%w: pixels %d are finished", pixel.ErrNotWritable, id)
	}
	d := m.Dims
	if err := addr.Validate(d); err != nil {
		return 0, err
	}
	if expected := pixel.NumBytes(addr, d); int64(len(data)) != expected {
		return 0, fmt.Errorf("%w: %s needs %d bytes, got %d", pixel.ErrBadAddress, addr, expected, len(data))
	}
	if bigEndian {
		data = append([]byte(nil), data...)
		if err := pixel.SwapBytes(data, d.BytesPerPixel); err != nil {
			return 0, err
		}
	}

	roi := addr.Bounds(d)
	nx, ny, _, _, _ := roi.Size()
	rowBytes := nx * d.BytesPerPixel
	fullPlane := nx == d.X && ny == d.Y
	planeBytes := int(d.PlaneBytes())

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	var pos int
	for t := roi.T0; t <= roi.T1; t++ {
		for c := roi.C0; c <= roi.C1; c++ {
			for z := roi.Z0; z <= roi.Z1; z++ {
				var plane []byte
				if fullPlane {
					plane = data[pos : pos+planeBytes]
					pos += planeBytes
				} else {
					err := s.db.View(func(txn *badger.Txn) error {
						var err error
						plane, err = s.getPlane(txn, id, z, c, t)
						return err
					})
					if err != nil {
						return 0, err
					}
					if plane == nil {
						plane = make([]byte, planeBytes)
					}
					for y := roi.Y0; y <= roi.Y1; y++ {
						start := (y*d.X + roi.X0) * d.BytesPerPixel
						copy(plane[start:start+rowBytes], data[pos:pos+rowBytes])
						pos += rowBytes
					}
				}
				value, err := pixel.SerializeData(plane, s.compress, s.checksum)
				if err != nil {
					return 0, err
				}
				if err := wb.Set(planeKey(id, z, c, t), value); err != nil {
					return 0, err
				}
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// zeroChunk is the largest run of zeros hashed at once for unwritten planes.
const zeroChunk = 64 * pixel.Kilo

// writeZeros writes n zero bytes to w in chunks.
func writeZeros(w io.Writer, n int64) {
	zeros := make([]byte, min(n, zeroChunk))
	for n > 0 {
		k := min(n, int64(len(zeros)))
		w.Write(zeros[:k])
		n -= k
	}
}

// digest hashes all planes in t, c, z order with unwritten planes as zeros.
func (s *Store) digest(m Meta) (string, error) {
	d := m.Dims
	h := sha1.New()
	err := s.db.View(func(txn *badger.Txn) error {
		for t := 0; t < d.T; t++ {
			for c := 0; c < d.C; c++ {
				for z := 0; z < d.Z; z++ {
					plane, err := s.getPlane(txn, m.ID, z, c, t)
					if err != nil {
						return err
					}
					if plane == nil {
						writeZeros(h, d.PlaneBytes())
						continue
					}
					h.Write(plane)
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Finish seals a writable array and returns the id under which it is now
// stored.  If a sealed array with identical contents, dimensions and pixel
// type exists, the given array is discarded and the existing id returned.
func (s *Store) Finish(id pixel.PixelsID) (pixel.PixelsID, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	m, err := s.Meta(id)
	if err != nil {
		return 0, err
	}
	if m.Sealed {
		return 0, fmt.Errorf("%w: pixels %d are already finished", pixel.ErrNotWritable, id)
	}
	timedLog := pixel.NewTimeLog()
	digest, err := s.digest(m)
	if err != nil {
		return 0, err
	}

	s.finishMu.Lock()
	defer s.finishMu.Unlock()

	key := sha1Key(digest, m.Info)
	var existing pixel.PixelsID
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("bad digest index value for %s", digest)
			}
			existing = pixel.PixelsID(binaryID(val))
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		if err := s.drop(id); err != nil {
			return 0, err
		}
		timedLog.Infof("Pixels %d duplicate pixels %d (sha1 %s), discarded", id, existing, digest)
		return existing, nil
	}

	m.Sealed = true
	m.SHA1 = digest
	if err := s.putMeta(m); err != nil {
		return 0, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, metaKey(id)[1:])
	})
	if err != nil {
		return 0, err
	}
	timedLog.Debugf("Finished pixels %d, sha1 %s", id, digest)
	return id, nil
}

// drop deletes an array's planes and metadata.
func (s *Store) drop(id pixel.PixelsID) error {
	if err := s.db.DropPrefix(planeKeyPrefix(id)); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metaKey(id))
	})
}
