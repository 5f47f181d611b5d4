// Package boltdb implements zone storage on a single bbolt file.
//
// Layout:
//
//	zones/<zone>/soa/{primary,admin,serial,refresh,retry,expire,minimum}
//	zones/<zone>/records/<name> = "<type> <value>"
package boltdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/jroosing/minidns/internal/zone"
)

var (
	bucketZones   = []byte("zones")
	bucketSOA     = []byte("soa")
	bucketRecords = []byte("records")
)

var _ zone.Store = (*Store)(nil)

// Store implements zone.Store using bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) a Bolt database at path and ensures the root bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketZones)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error { return s.db.Close() }

// Load reads every zone and its records.
func (s *Store) Load() ([]zone.Snapshot, error) {
	var snaps []zone.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketZones)
		if root == nil {
			return nil
		}
		// Keys iterate in byte order, so snapshots come out sorted.
		return root.ForEachBucket(func(k []byte) error {
			zb := root.Bucket(k)
			snap := zone.Snapshot{Name: string(k), SOA: readSOA(zb.Bucket(bucketSOA))}
			if rb := zb.Bucket(bucketRecords); rb != nil {
				if err := rb.ForEach(func(name, v []byte) error {
					typ, value, ok := strings.Cut(string(v), " ")
					if !ok {
						return fmt.Errorf("malformed record %s in %s", name, k)
					}
					snap.Records = append(snap.Records, zone.Record{Type: typ, Name: string(name), Value: value})
					return nil
				}); err != nil {
					return err
				}
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}
	return snaps, nil
}

// AddZone creates the bucket pair for a new zone.
func (s *Store) AddZone(name string, soa zone.SOA) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		zb, err := tx.Bucket(bucketZones).CreateBucket([]byte(name))
		if errors.Is(err, bberrors.ErrBucketExists) {
			return fmt.Errorf("%s: %w", name, zone.ErrZoneExists)
		}
		if err != nil {
			return fmt.Errorf("failed to create zone %s: %w", name, err)
		}
		if _, err := zb.CreateBucket(bucketRecords); err != nil {
			return err
		}
		sb, err := zb.CreateBucket(bucketSOA)
		if err != nil {
			return err
		}
		return writeSOA(sb, soa)
	})
}

// RemoveZone deletes a zone bucket and everything below it.
func (s *Store) RemoveZone(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketZones).DeleteBucket([]byte(name))
		if errors.Is(err, bberrors.ErrBucketNotFound) {
			return fmt.Errorf("%s: %w", name, zone.ErrZoneNotFound)
		}
		return err
	})
}

// PutRecord inserts or replaces a record and stores the new zone serial.
func (s *Store) PutRecord(zoneName string, rec zone.Record, serial uint32) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		zb := tx.Bucket(bucketZones).Bucket([]byte(zoneName))
		if zb == nil {
			return fmt.Errorf("%s: %w", zoneName, zone.ErrZoneNotFound)
		}
		if err := zb.Bucket(bucketRecords).Put([]byte(rec.Name), []byte(rec.Type+" "+rec.Value)); err != nil {
			return err
		}
		return putUint32(zb.Bucket(bucketSOA), "serial", serial)
	})
}

// DeleteRecord removes a record and stores the new zone serial.
func (s *Store) DeleteRecord(zoneName, name string, serial uint32) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		zb := tx.Bucket(bucketZones).Bucket([]byte(zoneName))
		if zb == nil {
			return fmt.Errorf("%s: %w", zoneName, zone.ErrZoneNotFound)
		}
		rb := zb.Bucket(bucketRecords)
		if rb.Get([]byte(name)) == nil {
			return fmt.Errorf("%s in %s: %w", name, zoneName, zone.ErrRecordNotFound)
		}
		if err := rb.Delete([]byte(name)); err != nil {
			return err
		}
		return putUint32(zb.Bucket(bucketSOA), "serial", serial)
	})
}

func writeSOA(b *bbolt.Bucket, soa zone.SOA) error {
	if err := b.Put([]byte("primary"), []byte(soa.Primary)); err != nil {
		return err
	}
	if err := b.Put([]byte("admin"), []byte(soa.Admin)); err != nil {
		return err
	}
	for _, f := range []struct {
		key string
		val uint32
	}{
		{"serial", soa.Serial},
		{"refresh", soa.Refresh},
		{"retry", soa.Retry},
		{"expire", soa.Expire},
		{"minimum", soa.Minimum},
	} {
		if err := putUint32(b, f.key, f.val); err != nil {
			return err
		}
	}
	return nil
}

func readSOA(b *bbolt.Bucket) zone.SOA {
	if b == nil {
		return zone.SOA{}
	}
	return zone.SOA{
		Primary: string(b.Get([]byte("primary"))),
		Admin:   string(b.Get([]byte("admin"))),
		Serial:  getUint32(b, "serial"),
		Refresh: getUint32(b, "refresh"),
		Retry:   getUint32(b, "retry"),
		Expire:  getUint32(b, "expire"),
		Minimum: getUint32(b, "minimum"),
	}
}

func putUint32(b *bbolt.Bucket, key string, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return b.Put([]byte(key), buf)
}

func getUint32(b *bbolt.Bucket, key string) uint32 {
	if v := b.Get([]byte(key)); len(v) == 4 {
		return binary.BigEndian.Uint32(v)
	}
	return 0
}
