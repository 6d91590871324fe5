//go:build !js && !wasm

// Package storage keeps the fingerprint catalog in a relational database
// through gorm: postings for the index, track metadata and recognition
// history. SQLite is the default; a postgres:// DSN selects PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/muzam/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultDBFile  = "muzam.sqlite3"
	errDBClientNil = "db client is nil"

	insertBatchSize = 500
	lookupChunkSize = 500
)

var (
	ErrTrackNotFound = errors.New("track not found")
	ErrEmptyTrackID  = errors.New("track id must not be empty")
)

type Store struct {
	DB       *gorm.DB
	db       *sql.DB
	postgres bool
	writeMu  sync.Mutex
}

// OpenFromEnv opens the store named by MUZAM_DB, or DefaultDBFile.
func OpenFromEnv() (*Store, error) {
	dsn := os.Getenv("MUZAM_DB")
	if dsn == "" {
		dsn = DefaultDBFile
	}
	return Open(dsn)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to dsn and migrates the schema. Anything that is not a
// postgres URL is treated as a SQLite file path.
func Open(dsn string) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var dialector gorm.Dialector
	pg := isPostgres(dsn)
	if pg {
		dialector = postgres.Open(dsn)
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating db dir: %w", err)
			}
		}
		dialector = sqlite.Open(dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &IndexedTrack{}, &Posting{}, &Recognition{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{DB: db, db: sqlDB, postgres: pg}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready() error {
	if s == nil || s.DB == nil {
		return errors.New(errDBClientNil)
	}
	return nil
}

// readTx runs fn in one read transaction so every statement sees the same
// snapshot.
func (s *Store) readTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.postgres {
		return s.DB.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return s.DB.WithContext(ctx).Transaction(fn)
}

// Insert stores one posting per token in a single transaction.
func (s *Store) Insert(ctx context.Context, trackID string, fp models.Fingerprint) error {
	if err := s.ready(); err != nil {
		return err
	}
	if trackID == "" {
		return ErrEmptyTrackID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fp.Empty() {
		return nil
	}

	entries := make([]Posting, len(fp.Tokens))
	for i, tok := range fp.Tokens {
		entries[i] = Posting{
			Hash:       tok.Value,
			TrackID:    trackID,
			TimeOffset: tok.TimeOffset,
			Scheme:     uint8(tok.Scheme),
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry IndexedTrack
		err := tx.Where("track_id = ?", trackID).First(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = IndexedTrack{TrackID: trackID, Postings: len(entries)}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("registering indexed track: %w", err)
			}
		case err != nil:
			return fmt.Errorf("querying indexed track: %w", err)
		default:
			if err := tx.Model(&entry).Update("postings", entry.Postings+len(entries)).Error; err != nil {
				return fmt.Errorf("updating posting count: %w", err)
			}
		}
		if err := tx.CreateInBatches(entries, insertBatchSize).Error; err != nil {
			return fmt.Errorf("batch insert postings: %w", err)
		}
		return nil
	})
}

type hashHits struct {
	TrackID string
	Hash    string
	Hits    int
}

// Lookup aggregates postings per track for values in catalog order.
func (s *Store) Lookup(ctx context.Context, values []string) ([]models.TrackHits, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values = distinct(values)
	if len(values) == 0 {
		return nil, nil
	}

	hits := make(map[string]*models.TrackHits)
	ordinals := make(map[string]uint)
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		for _, chunk := range chunks(values, lookupChunkSize) {
			var rows []hashHits
			err := tx.Model(&Posting{}).
				Select("track_id, hash, COUNT(*) AS hits").
				Where("hash IN ?", chunk).
				Group("track_id, hash").
				Scan(&rows).Error
			if err != nil {
				return fmt.Errorf("batch querying postings: %w", err)
			}
			for _, r := range rows {
				h, ok := hits[r.TrackID]
				if !ok {
					h = &models.TrackHits{TrackID: r.TrackID}
					hits[r.TrackID] = h
				}
				h.MatchCount += r.Hits
				h.UniqueMatches++
			}
		}

		ids := make([]string, 0, len(hits))
		for id := range hits {
			ids = append(ids, id)
		}
		for _, chunk := range chunks(ids, lookupChunkSize) {
			var entries []IndexedTrack
			if err := tx.Where("track_id IN ?", chunk).Find(&entries).Error; err != nil {
				return fmt.Errorf("querying catalog order: %w", err)
			}
			for _, e := range entries {
				ordinals[e.TrackID] = e.ID
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.TrackHits, 0, len(hits))
	for _, h := range hits {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		return ordinals[out[i].TrackID] < ordinals[out[j].TrackID]
	})
	return out, nil
}

// Remove deletes the postings of trackID but keeps its metadata.
func (s *Store) Remove(ctx context.Context, trackID string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var removed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		removed, err = removePostings(tx, trackID)
		return err
	})
	return int(removed), err
}

func removePostings(tx *gorm.DB, trackID string) (int64, error) {
	res := tx.Where("track_id = ?", trackID).Delete(&Posting{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting postings: %w", res.Error)
	}
	if err := tx.Where("track_id = ?", trackID).Delete(&IndexedTrack{}).Error; err != nil {
		return 0, fmt.Errorf("deleting indexed track: %w", err)
	}
	return res.RowsAffected, nil
}

func (s *Store) Stats(ctx context.Context) (models.IndexStats, error) {
	var stats models.IndexStats
	if err := s.ready(); err != nil {
		return stats, err
	}
	var tracks, postings, hashes int64
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&IndexedTrack{}).Count(&tracks).Error; err != nil {
			return err
		}
		if err := tx.Model(&Posting{}).Count(&postings).Error; err != nil {
			return err
		}
		return tx.Model(&Posting{}).Distinct("hash").Count(&hashes).Error
	})
	if err != nil {
		return stats, fmt.Errorf("counting catalog: %w", err)
	}
	return models.IndexStats{Tracks: int(tracks), Postings: int(postings), DistinctHashes: int(hashes)}, nil
}

func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func chunks(values []string, size int) [][]string {
	var out [][]string
	for len(values) > size {
		out = append(out, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		out = append(out, values)
	}
	return out
}
