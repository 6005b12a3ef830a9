package boltstore

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/boltdb/bolt"

	"github.com/moonwalker/verdict/pkg/store"
)

type boltstore struct {
	storePath  string
	bucketName []byte

	mu     sync.Mutex
	db     *bolt.DB
	opened bool
}

func New(storePath string, bucketName string) store.Store {
	return &boltstore{storePath: storePath, bucketName: []byte(bucketName)}
}

func (s *boltstore) open() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return
	}

	s.db, err = bolt.Open(s.storePath, 0600, nil)
	if err != nil {
		return
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucketName)
		return err
	})

	if err == nil {
		s.opened = true
	}

	return
}

func (s *boltstore) GetInternalStore() interface{} {
	if err := s.open(); err != nil {
		return nil
	}
	return s.db
}

func (s *boltstore) Get(key string) (val []byte, err error) {
	err = s.open()
	if err != nil {
		return
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucketName)
		// bolt values are only valid for the life of the tx
		if v := b.Get([]byte(key)); v != nil {
			val = append([]byte(nil), v...)
		}
		return nil
	})

	return
}

func (s *boltstore) Set(key string, val []byte, options *store.WriteOptions) (err error) {
	err = s.open()
	if err != nil {
		return
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucketName)
		return b.Put([]byte(key), val)
	})
}

func (s *boltstore) IncrBy(key string, delta float64) (res float64, err error) {
	err = s.open()
	if err != nil {
		return
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucketName)
		if v := b.Get([]byte(key)); v != nil {
			cur, err := strconv.ParseFloat(string(v), 64)
			if err != nil {
				return err
			}
			res = cur
		}
		res += delta
		return b.Put([]byte(key), []byte(strconv.FormatFloat(res, 'f', -1, 64)))
	})

	return
}

func (s *boltstore) Exists(key string) (exists bool, err error) {
	err = s.open()
	if err != nil {
		return
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(s.bucketName).Get([]byte(key)) != nil
		return nil
	})

	return
}

func (s *boltstore) Expire(key string, ttl int64) (err error) {
	return store.ErrNotImplemented
}

func (s *boltstore) Delete(key string) (err error) {
	err = s.open()
	if err != nil {
		return
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucketName)
		return b.Delete([]byte(key))
	})
}

func (s *boltstore) DeleteAll(prefix string) (err error) {
	err = s.open()
	if err != nil {
		return
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucketName)
		p := []byte(prefix)

		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltstore) Scan(prefix string, skip int, limit int, fn func(key string, val []byte)) (err error) {
	err = s.open()
	if err != nil {
		return
	}

	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucketName).Cursor()
		p := []byte(prefix)
		i, n := 0, 0
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			i++
			if i <= skip {
				continue
			}
			if limit > 0 && n >= limit {
				break
			}
			n++
			fn(string(k), append([]byte(nil), v...))
		}
		return nil
	})
}

func (s *boltstore) Count(prefix string) (n int) {
	if err := s.open(); err != nil {
		return -1
	}

	s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucketName).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			n++
		}
		return nil
	})

	return
}

func (s *boltstore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}
	s.opened = false
	return s.db.Close()
}
