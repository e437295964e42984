package p2p

import (
	"encoding/binary"
	"log/slog"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

var addrBucket = []byte("addrs")

// AddressBook is the persisted set of known peer addresses. A missing or
// corrupt file is recreated silently; losing the address book only costs a
// fresh round of seeding.
type AddressBook struct {
	db     *bolt.DB
	logger *slog.Logger
}

// OpenAddressBook opens (or recreates) the peer address book at path.
func OpenAddressBook(path string, logger *slog.Logger) (*AddressBook, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openAddrDB(path)
	if err != nil {
		logger.Warn("invalid or missing peer address book; recreating",
			slog.String("path", path), slog.Any("error", err))
		_ = os.Remove(path)
		if db, err = openAddrDB(path); err != nil {
			return nil, err
		}
	}
	return &AddressBook{db: db, logger: logger}, nil
}

func openAddrDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(addrBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Add records a peer address with the time it was last seen.
func (b *AddressBook) Add(addr string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		var seen [8]byte
		binary.BigEndian.PutUint64(seen[:], uint64(time.Now().Unix()))
		return tx.Bucket(addrBucket).Put([]byte(addr), seen[:])
	})
}

// Addresses returns every known peer address.
func (b *AddressBook) Addresses() ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(addrBucket).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// Len reports the number of known addresses.
func (b *AddressBook) Len() int {
	n := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(addrBucket).Stats().KeyN
		return nil
	})
	return n
}

// Prune drops addresses not seen within the given lifespan.
func (b *AddressBook) Prune(lifespan time.Duration) error {
	cutoff := uint64(time.Now().Add(-lifespan).Unix())
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(addrBucket)
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if len(v) == 8 && binary.BigEndian.Uint64(v) < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying file.
func (b *AddressBook) Close() error {
	return b.db.Close()
}
