package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/janelia-flyem/pixaccess/pixel"
)

const filePrefix byte = 'f'

// FileMeta describes an uploaded file whose bytes live in a blob bucket.
type FileMeta struct {
	ID      pixel.FileID
	Name    string
	Length  int64
	SHA1    string
	Created time.Time
}

func fileKey(id pixel.FileID) []byte {
	k := make([]byte, 9)
	k[0] = filePrefix
	binary.BigEndian.PutUint64(k[1:], uint64(id))
	return k
}

// PutFile records an uploaded file.
func (s *Store) PutFile(f FileMeta) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fileKey(f.ID), data)
	})
}

// File returns the record of an uploaded file or pixel.ErrNotFound.
func (s *Store) File(id pixel.FileID) (FileMeta, error) {
	var f FileMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: file %d", pixel.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &f)
		})
	})
	return f, err
}

// DeleteFile removes the record of an uploaded file.
func (s *Store) DeleteFile(id pixel.FileID) error {
	if _, err := s.File(id); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(fileKey(id))
	})
}
