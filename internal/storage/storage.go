package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Storage keys
const (
	keyPreferences    = "preferences"
	keyStats          = "stats"
	keyFirstLaunch    = "first_launch"
	prefixAnalysis    = "analysis/"
	prefixTTSnapshots = "tt/"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// Preferences stores the engine settings the CLI starts with.
type Preferences struct {
	HashMB       int           `json:"hash_mb"`
	Threads      int           `json:"threads"`
	MoveOverhead time.Duration `json:"move_overhead"`
	WeightsPath  string        `json:"weights_path"`
	TablebaseURL string        `json:"tablebase_url"`
	LastUsed     time.Time     `json:"last_used"`
}

// DefaultPreferences returns default engine preferences
func DefaultPreferences() *Preferences {
	return &Preferences{
		HashMB:       64,
		Threads:      1,
		MoveOverhead: 10 * time.Millisecond,
		LastUsed:     time.Now(),
	}
}

// SearchStats accumulates totals over every search recorded.
type SearchStats struct {
	Searches   int           `json:"searches"`
	TotalNodes uint64        `json:"total_nodes"`
	TotalTime  time.Duration `json:"total_time"`
	MaxDepth   int           `json:"max_depth"`
}

// NodesPerSecond returns the average search speed.
func (s *SearchStats) NodesPerSecond() uint64 {
	if s.TotalTime <= 0 {
		return 0
	}
	return uint64(float64(s.TotalNodes) / s.TotalTime.Seconds())
}

// Analysis is a finished search of one position.
type Analysis struct {
	FEN   string    `json:"fen"`
	Move  string    `json:"move"`
	PV    []string  `json:"pv"`
	Score int       `json:"score"`
	Depth int       `json:"depth"`
	Nodes uint64    `json:"nodes"`
	At    time.Time `json:"at"`
}

// Options configures Open.
type Options struct {
	Dir    string
	Logger zerolog.Logger

	// InMemory keeps everything in RAM; Dir is ignored.
	InMemory bool
}

// Storage wraps BadgerDB for persistent storage
type Storage struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens or creates the database described by opts.
func Open(opts Options) (*Storage, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", opts.Dir, err)
	}
	opts.Logger.Debug().Str("dir", opts.Dir).Bool("in_memory", opts.InMemory).Msg("database opened")
	return &Storage{db: db, log: opts.Logger}, nil
}

// OpenDefault opens the database in the platform data directory.
func OpenDefault(logger zerolog.Logger) (*Storage, error) {
	dir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(Options{Dir: dir, Logger: logger})
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// IsFirstLaunch returns true if this is the first launch
func (s *Storage) IsFirstLaunch() (bool, error) {
	firstLaunch := true
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyFirstLaunch))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		firstLaunch = false
		return nil
	})
	return firstLaunch, err
}

// MarkFirstLaunchComplete marks that first launch setup is complete
func (s *Storage) MarkFirstLaunchComplete() error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyFirstLaunch), []byte("done"))
	})
}

func (s *Storage) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// getJSON decodes the value at key into v, reporting whether it existed.
func (s *Storage) getJSON(key []byte, v any) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	return found, err
}

// SavePreferences saves engine preferences
func (s *Storage) SavePreferences(prefs *Preferences) error {
	prefs.LastUsed = time.Now()
	return s.putJSON([]byte(keyPreferences), prefs)
}

// LoadPreferences loads engine preferences, returns defaults if not found
func (s *Storage) LoadPreferences() (*Preferences, error) {
	prefs := DefaultPreferences()
	_, err := s.getJSON([]byte(keyPreferences), prefs)
	return prefs, err
}

// LoadStats loads search statistics, returns empty stats if not found
func (s *Storage) LoadStats() (*SearchStats, error) {
	stats := &SearchStats{}
	_, err := s.getJSON([]byte(keyStats), stats)
	return stats, err
}

// RecordSearch adds a finished search to the statistics.
func (s *Storage) RecordSearch(nodes uint64, depth int, elapsed time.Duration) error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}
	stats.Searches++
	stats.TotalNodes += nodes
	stats.TotalTime += elapsed
	stats.MaxDepth = max(stats.MaxDepth, depth)
	return s.putJSON([]byte(keyStats), stats)
}

func analysisKey(hash uint64) []byte {
	key := make([]byte, len(prefixAnalysis)+8)
	copy(key, prefixAnalysis)
	binary.BigEndian.PutUint64(key[len(prefixAnalysis):], hash)
	return key
}

// PutAnalysis records a result under the position hash. A stored result
// of greater depth is kept.
func (s *Storage) PutAnalysis(hash uint64, a Analysis) (bool, error) {
	key := analysisKey(hash)
	var old Analysis
	found, err := s.getJSON(key, &old)
	if err != nil {
		return false, err
	}
	if found && old.FEN == a.FEN && old.Depth > a.Depth {
		return false, nil
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	if err := s.putJSON(key, a); err != nil {
		return false, err
	}
	s.log.Debug().Uint64("hash", hash).Int("depth", a.Depth).Msg("analysis stored")
	return true, nil
}

// GetAnalysis returns the result stored for hash, or ErrNotFound.
func (s *Storage) GetAnalysis(hash uint64) (Analysis, error) {
	var a Analysis
	found, err := s.getJSON(analysisKey(hash), &a)
	if err != nil {
		return Analysis{}, err
	}
	if !found {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// Analyses calls fn for every stored result until fn returns false.
func (s *Storage) Analyses(fn func(hash uint64, a Analysis) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixAnalysis)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			hash := binary.BigEndian.Uint64(item.Key()[len(prefixAnalysis):])
			var a Analysis
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return fmt.Errorf("analysis %016x: %w", hash, err)
			}
			if !fn(hash, a) {
				return nil
			}
		}
		return nil
	})
}

// DeleteAnalysis removes the result stored for hash.
func (s *Storage) DeleteAnalysis(hash uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(analysisKey(hash))
	})
}
