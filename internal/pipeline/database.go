package pipeline

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"go.etcd.io/bbolt"
)

const recordsBucket = "records"

// ErrRecordNotFound is returned when no journal record has the requested ID
var ErrRecordNotFound = errors.New("record not found")

// DB is the invoice journal
type DB interface {
	// SaveRecord stores or replaces a record
	SaveRecord(record *Record) error

	// GetRecord retrieves a record by ID
	GetRecord(id string) (*Record, error)

	// ListRecords returns all records in key order
	ListRecords() ([]*Record, error)

	// DeleteRecord removes a record; unknown IDs are not an error
	DeleteRecord(id string) error

	Close() error
}

// BoltDB implements DB on a single bbolt file
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the journal at path
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening journal %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating records bucket")
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) SaveRecord(record *Record) error {
	if record.ID == "" {
		return errors.New("record has no ID")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "marshaling record")
		}
		return tx.Bucket([]byte(recordsBucket)).Put([]byte(record.ID), data)
	})
}

func (b *BoltDB) GetRecord(id string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(recordsBucket)).Get([]byte(id))
		if data == nil {
			return errors.Wrapf(ErrRecordNotFound, "id %s", id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (b *BoltDB) ListRecords() ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return errors.Wrapf(err, "unmarshaling record %s", k)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (b *BoltDB) DeleteRecord(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Delete([]byte(id))
	})
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}
