// Package store keeps a bounded per-room history of room reports in bbolt.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
)

// Bucket names
const (
	ResultsBucket = "results"
	RoomsBucket   = "rooms"
)

// ErrNotFound is returned when a room has no stored reports
var ErrNotFound = errors.New("not found")

// Config holds store configuration
type Config struct {
	Path       string `json:"path"`
	MaxPerRoom int    `json:"max_per_room"`
}

// DefaultConfig returns default store configuration
func DefaultConfig() *Config {
	return &Config{
		Path:       "/var/lib/hifiwifi/results.db",
		MaxPerRoom: 100,
	}
}

// RoomInfo summarises one room's stored history
type RoomInfo struct {
	Room        string    `json:"room"`
	Count       int       `json:"count"`
	LastOverall string    `json:"last_overall"`
	LastScore   float64   `json:"last_score"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ResultStore persists room reports. Keys are "<room>/<RFC3339Nano>" so a
// prefix scan returns one room's history in time order.
type ResultStore struct {
	logger *logx.Logger
	config *Config
	db     *bolt.DB
	mu     sync.Mutex
}

// Open opens or creates the database
func Open(config *Config, logger *logx.Logger) (*ResultStore, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxPerRoom <= 0 {
		config.MaxPerRoom = DefaultConfig().MaxPerRoom
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}

	s := &ResultStore{logger: logger, config: config, db: db}
	if err := s.initializeBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store buckets: %w", err)
	}

	logger.Info("Result store opened", "path", config.Path, "max_per_room", config.MaxPerRoom)
	return s, nil
}

func (s *ResultStore) initializeBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{ResultsBucket, RoomsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database
func (s *ResultStore) Close() error {
	return s.db.Close()
}

// Name identifies the store in logs and metrics
func (s *ResultStore) Name() string {
	return "bbolt"
}

func roomKey(room string) string {
	return strings.ReplaceAll(room, "/", "_")
}

// keyTimeLayout is fixed width so keys sort in time order
const keyTimeLayout = "20060102T150405.000000000"

// resultKey is <room>/<utc time>/<sequence>. The sequence keeps reports with
// the same timestamp apart.
func resultKey(room string, ts time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/%s/%016x", roomKey(room), ts.UTC().Format(keyTimeLayout), seq))
}

// Save stores a report and evicts the oldest ones beyond MaxPerRoom
func (s *ResultStore) Save(report *pkg.RoomReport) error {
	room := report.Room()
	if room == "" {
		return fmt.Errorf("report has no room")
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	err = s.db.Update(func(tx *bolt.Tx) error {
		results := tx.Bucket([]byte(ResultsBucket))
		seq, err := results.NextSequence()
		if err != nil {
			return err
		}
		if err := results.Put(resultKey(room, report.Timestamp(), seq), data); err != nil {
			return err
		}

		keys := s.roomKeys(results, room)
		for len(keys) > s.config.MaxPerRoom {
			if err := results.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
			evicted++
		}

		info := RoomInfo{
			Room:        room,
			Count:       len(keys),
			LastOverall: report.Classification.OverallClassification.String(),
			LastScore:   report.Classification.WeightedScore,
			UpdatedAt:   report.Timestamp(),
		}
		infoData, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(RoomsBucket)).Put([]byte(roomKey(room)), infoData)
	})
	if err != nil {
		return fmt.Errorf("failed to save report for %s: %w", room, err)
	}

	if evicted > 0 {
		s.logger.Debug("Evicted old reports", "room", room, "evicted", evicted)
	}
	return nil
}

// roomKeys returns one room's keys, oldest first
func (s *ResultStore) roomKeys(b *bolt.Bucket, room string) [][]byte {
	prefix := []byte(roomKey(room) + "/")
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		key := make([]byte, len(k))
		copy(key, k)
		keys = append(keys, key)
	}
	return keys
}

// History returns up to limit reports for a room, newest first. A limit
// <= 0 returns everything stored.
func (s *ResultStore) History(room string, limit int) ([]*pkg.RoomReport, error) {
	var out []*pkg.RoomReport
	prefix := []byte(roomKey(room) + "/")

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(ResultsBucket)).Cursor()

		// seek past the prefix, then walk backwards
		k, v := c.Seek(append(append([]byte{}, prefix[:len(prefix)-1]...), '/'+1))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Prev() {
			var r pkg.RoomReport
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt report %s: %w", k, err)
			}
			out = append(out, &r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Latest returns the newest report for a room
func (s *ResultStore) Latest(room string) (*pkg.RoomReport, error) {
	reports, err := s.History(room, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("room %s: %w", room, ErrNotFound)
	}
	return reports[0], nil
}

// Rooms returns the summary of every room, sorted by name
func (s *ResultStore) Rooms() ([]RoomInfo, error) {
	var rooms []RoomInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(RoomsBucket)).ForEach(func(_, v []byte) error {
			var info RoomInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			rooms = append(rooms, info)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Room < rooms[j].Room })
	return rooms, nil
}

// DeleteRoom removes a room and its history
func (s *ResultStore) DeleteRoom(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		results := tx.Bucket([]byte(ResultsBucket))
		for _, k := range s.roomKeys(results, room) {
			if err := results.Delete(k); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(RoomsBucket)).Delete([]byte(roomKey(room)))
	})
}
