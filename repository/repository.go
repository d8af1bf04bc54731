package repository

import (
	"encoding/json"
	"fmt"

	"github.com/quantumVector/app-mtla-me/db"
	"github.com/quantumVector/app-mtla-me/models"
)

const (
	snapshotPrefix   = "snapshot:"
	resolutionPrefix = "resolution:"
)

// SnapshotRepositoryInterface abstracts the storage layer from the pipeline
type SnapshotRepositoryInterface interface {
	PutSnapshot(snap *models.RecordSnapshot) error
	GetSnapshot(key string) (*models.RecordSnapshot, error)
	DeleteSnapshots() error
	PutResolution(res *models.Resolution) error
	GetLatestResolution() (*models.Resolution, error)
	PruneResolutions(keep int) error
}

// SnapshotRepository implements SnapshotRepositoryInterface using LevelDB as the storage backend
type SnapshotRepository struct {
	db *db.LevelDB
}

// NewSnapshotRepository creates and returns a new SnapshotRepository instance
func NewSnapshotRepository(db *db.LevelDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// PutSnapshot stores fetched records under their query key
func (r *SnapshotRepository) PutSnapshot(snap *models.RecordSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.db.Put([]byte(snapshotPrefix+snap.Key), data)
}

// GetSnapshot returns the snapshot for key, or nil if none is stored
func (r *SnapshotRepository) GetSnapshot(key string) (*models.RecordSnapshot, error) {
	data, err := r.db.Get([]byte(snapshotPrefix + key))
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	var snap models.RecordSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// DeleteSnapshots drops every stored snapshot so the next read refetches
func (r *SnapshotRepository) DeleteSnapshots() error {
	return r.db.DeletePrefix([]byte(snapshotPrefix))
}

// resolutionKey orders checkpoints by time: a zero padded millisecond
// timestamp sorts bytewise the same way it sorts numerically.
func resolutionKey(res *models.Resolution) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", resolutionPrefix, max(res.Timestamp, 0), res.ID))
}

// PutResolution stores a checkpoint of a completed resolution run
func (r *SnapshotRepository) PutResolution(res *models.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.db.Put(resolutionKey(res), data)
}

// GetLatestResolution retrieves the most recent checkpoint, or nil if there is none
func (r *SnapshotRepository) GetLatestResolution() (*models.Resolution, error) {
	iter := r.db.NewPrefixIterator([]byte(resolutionPrefix))
	defer iter.Release()

	if !iter.Last() {
		return nil, iter.Error()
	}
	var res models.Resolution
	if err := json.Unmarshal(iter.Value(), &res); err != nil {
		return nil, fmt.Errorf("decode resolution: %w", err)
	}
	return &res, nil
}

// PruneResolutions keeps the newest keep checkpoints and deletes the rest
func (r *SnapshotRepository) PruneResolutions(keep int) error {
	iter := r.db.NewPrefixIterator([]byte(resolutionPrefix))
	defer iter.Release()

	var stale [][]byte
	seen := 0
	for ok := iter.Last(); ok; ok = iter.Prev() {
		seen++
		if seen > keep {
			stale = append(stale, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return r.db.DeleteKeys(stale)
}
