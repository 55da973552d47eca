// Package storage provides a persistent audit log of served decisions,
// backed by BoltDB. Records are keyed by request ID and timestamp for
// efficient time-range queries.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const predictionsBucket = "predictions"

// Record is one served decision as persisted to the audit log.
type Record struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Label        int       `json:"label"`
	Probability  *float64  `json:"probability,omitempty"`
	Decision     string    `json:"decision"`
	ModelVersion int       `json:"model_version"`
}

// Store provides persistent storage for prediction audit records.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the audit database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "predictions.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StorePrediction appends one decision to the audit log.
func (s *Store) StorePrediction(record Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal prediction record: %w", err)
		}

		key := fmt.Sprintf("%d_%s", record.Timestamp.UnixNano(), record.RequestID)
		return b.Put([]byte(key), data)
	})
}

// GetPredictionsInRange returns the audit records in [start, end], in
// timestamp order.
func (s *Store) GetPredictionsInRange(start, end time.Time) ([]Record, error) {
	var records []Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()

		startKey := []byte(fmt.Sprintf("%d_", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%d~", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				continue // Skip malformed records
			}
			records = append(records, record)
		}

		return nil
	})

	return records, err
}
