package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/limbcontrol/internal/training"
)

// SaveTrainingSet writes set and its samples in one transaction.
func (db *DB) SaveTrainingSet(ctx context.Context, set *training.Set) error {
	if set == nil || set.ID == "" {
		return errors.New("training set requires an id")
	}
	numFeatures := 0
	if len(set.Samples) > 0 {
		numFeatures = len(set.Samples[0].Features)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO training_sets (set_id, created_at, description, num_channels, num_features, num_samples)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		set.ID, set.CreatedAt.UnixNano(), set.Description, set.NumChannels, numFeatures, len(set.Samples),
	); err != nil {
		return fmt.Errorf("insert training set: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO training_samples (set_id, seq, class_id, class_name, recorded_at, features, imu)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range set.Samples {
		var imu []byte
		if s.IMU != nil {
			imu = encodeFloats(s.IMU)
		}
		if _, err := stmt.ExecContext(ctx, set.ID, i, s.ClassID, s.ClassName, s.Timestamp.UnixNano(), encodeFloats(s.Features), imu); err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logs.Diagf("saved training set %s: %d samples x %d features", set.ID, len(set.Samples), numFeatures)
	return nil
}

// LoadLatestTrainingSet returns the most recently created set, or an error
// wrapping training.ErrNotFound.
func (db *DB) LoadLatestTrainingSet(ctx context.Context) (*training.Set, error) {
	var id string
	err := db.QueryRowContext(ctx,
		`SELECT set_id FROM training_sets ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w in %s", training.ErrNotFound, db.path)
	}
	if err != nil {
		return nil, err
	}
	return db.LoadTrainingSet(ctx, id)
}

// LoadTrainingSet returns the set with the given id.
func (db *DB) LoadTrainingSet(ctx context.Context, id string) (*training.Set, error) {
	var (
		set       training.Set
		createdAt int64
		expected  int
	)
	err := db.QueryRowContext(ctx,
		`SELECT set_id, created_at, description, num_channels, num_samples FROM training_sets WHERE set_id = ?`, id,
	).Scan(&set.ID, &createdAt, &set.Description, &set.NumChannels, &expected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: set %s", training.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	set.CreatedAt = time.Unix(0, createdAt).UTC()

	rows, err := db.QueryContext(ctx,
		`SELECT class_id, class_name, recorded_at, features, imu FROM training_samples WHERE set_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set.Samples = make([]training.Sample, 0, expected)
	for rows.Next() {
		var (
			s          training.Sample
			recordedAt int64
			feat, imu  []byte
		)
		if err := rows.Scan(&s.ClassID, &s.ClassName, &recordedAt, &feat, &imu); err != nil {
			return nil, err
		}
		if s.Features, err = decodeFloats(feat); err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", training.ErrMalformed, len(set.Samples), err)
		}
		if imu != nil {
			if s.IMU, err = decodeFloats(imu); err != nil {
				return nil, fmt.Errorf("%w: sample %d imu: %v", training.ErrMalformed, len(set.Samples), err)
			}
		}
		s.Timestamp = time.Unix(0, recordedAt).UTC()
		set.Samples = append(set.Samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(set.Samples) != expected {
		return nil, fmt.Errorf("%w: set %s has %d of %d samples", training.ErrMalformed, id, len(set.Samples), expected)
	}
	return &set, nil
}

// SetSummary describes one saved training set.
type SetSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description"`
	NumChannels int       `json:"num_channels"`
	NumFeatures int       `json:"num_features"`
	NumSamples  int       `json:"num_samples"`
}

// TrainingSets lists saved sets, newest first.
func (db *DB) TrainingSets(ctx context.Context, limit int) ([]SetSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT set_id, created_at, description, num_channels, num_features, num_samples
		 FROM training_sets ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SetSummary
	for rows.Next() {
		var s SetSummary
		var createdAt int64
		if err := rows.Scan(&s.ID, &createdAt, &s.Description, &s.NumChannels, &s.NumFeatures, &s.NumSamples); err != nil {
			return nil, err
		}
		s.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// ClassTotals counts samples per class name in a set.
func (db *DB) ClassTotals(ctx context.Context, id string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT class_name, COUNT(*) FROM training_samples WHERE set_id = ? GROUP BY class_name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}

// DeleteTrainingSet removes a set and its samples.
func (db *DB) DeleteTrainingSet(ctx context.Context, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_samples WHERE set_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM training_sets WHERE set_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: set %s", training.ErrNotFound, id)
	}
	return tx.Commit()
}

// encodeFloats packs values as little-endian float64.
func encodeFloats(v []float64) []byte {
	var buf bytes.Buffer
	buf.Grow(8 * len(v))
	_ = binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeFloats(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(b))
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return out, nil
}
