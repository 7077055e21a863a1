// Package offset remembers, per file, the position where gzseek stopped
// reading, so that a later run can resume from there.
package offset

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const bucketName = "offsets"

// Store keeps read offsets in a BoltDB file, keyed by absolute file path.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Trace(err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		// Most likely another gzseek holds the lock.
		return nil, errors.Annotatef(err, "opening offset store %s", dbPath)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Annotate(err, "creating bucket")
	}

	log.Debug().Str("db_path", dbPath).Msg("offset store opened")
	return &Store{db: db}, nil
}

// Get returns the offset saved for the file, and whether there was one.
func (s *Store) Get(path string) (int64, bool, error) {
	key, err := makeKey(path)
	if err != nil {
		return 0, false, err
	}

	var offset int64
	var found bool
	err = s.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket([]byte(bucketName)).Get(key)
		if val == nil {
			return nil
		}
		if len(val) != 8 {
			return errors.NotValidf("offset value for %s", key)
		}
		offset, found = int64(binary.BigEndian.Uint64(val)), true
		return nil
	})
	if err != nil {
		return 0, false, errors.Annotate(err, "getting offset")
	}
	return offset, found, nil
}

// Set saves the offset for the file.
func (s *Store) Set(path string, offset int64) error {
	key, err := makeKey(path)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(offset))
		return tx.Bucket([]byte(bucketName)).Put(key, val)
	})
	if err != nil {
		return errors.Annotate(err, "setting offset")
	}

	log.Debug().
		Str("file_path", string(key)).
		Int64("offset", offset).
		Msg("offset updated")
	return nil
}

// Delete forgets the offset of the file.
func (s *Store) Delete(path string) error {
	key, err := makeKey(path)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(key)
	})
	return errors.Annotate(err, "deleting offset")
}

// List returns all saved offsets by file path.
func (s *Store) List() (map[string]int64, error) {
	result := make(map[string]int64)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				result[string(k)] = int64(binary.BigEndian.Uint64(v))
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Annotate(err, "listing offsets")
	}
	return result, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return errors.Trace(s.db.Close())
}

func makeKey(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return []byte(abs), nil
}
