// Package checkpoint persists network parameters per epoch in BadgerDB and
// archives finished runs to S3.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	dirMode        = 0o755 // Default directory permissions
	keySplitParts  = 3     // run:epoch:param
	epochWidth     = 9     // zero padded so keys sort by epoch
	maxEpoch       = 999_999_999
	float32Bytes   = 4
	maxPendingLoad = 256 // pending writes while restoring a backup
	decimalBase    = 10
)

// ErrNotFound is returned when a run or epoch has no stored parameters.
var ErrNotFound = errors.New("checkpoint not found")

// Store keeps parameter snapshots keyed by run:epoch:parameter.
type Store struct {
	db   *badger.DB
	path string
}

// Open opens a store at path, or an in-memory store when path is empty.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(path, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint path: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func key(runID string, epoch int, param string) []byte {
	return fmt.Appendf(nil, "%s:%0*d:%s", runID, epochWidth, epoch, param)
}

func prefix(runID string) []byte { return []byte(runID + ":") }

// Save stores every parameter of an epoch in a single transaction.
func (s *Store) Save(runID string, epoch int, params map[string][]float32) error {
	if strings.Contains(runID, ":") {
		return fmt.Errorf("run id %q must not contain ':'", runID)
	}
	if epoch < 0 || epoch > maxEpoch {
		return fmt.Errorf("epoch %d outside [0,%d]", epoch, maxEpoch)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for name, values := range params {
			if err := txn.Set(key(runID, epoch, name), encodeFloats(values)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the parameters stored for an epoch.
func (s *Store) Load(runID string, epoch int) (map[string][]float32, error) {
	out := map[string][]float32{}
	p := key(runID, epoch, "")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), string(p))
			if err := item.Value(func(v []byte) error {
				values, err := decodeFloats(v)
				out[name] = values
				return err
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", item.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: run %s epoch %d", ErrNotFound, runID, epoch)
	}
	return out, nil
}

// Epochs lists the stored epochs of a run in ascending order.
func (s *Store) Epochs(runID string) ([]int, error) {
	seen := map[int]struct{}{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := prefix(runID)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			parts := strings.SplitN(string(it.Item().Key()), ":", keySplitParts)
			if len(parts) != keySplitParts {
				continue
			}
			epoch, err := strconv.ParseInt(parts[1], decimalBase, 0)
			if err != nil {
				return fmt.Errorf("malformed key %s: %w", it.Item().Key(), err)
			}
			seen[int(epoch)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	epochs := make([]int, 0, len(seen))
	for e := range seen {
		epochs = append(epochs, e)
	}
	sort.Ints(epochs)
	return epochs, nil
}

// Latest returns the highest stored epoch of a run.
func (s *Store) Latest(runID string) (int, error) {
	epochs, err := s.Epochs(runID)
	if err != nil {
		return 0, err
	}
	if len(epochs) == 0 {
		return 0, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return epochs[len(epochs)-1], nil
}

// StatsByRun counts stored parameter entries per run.
func (s *Store) StatsByRun() (map[string]int, error) {
	stats := make(map[string]int)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			run := strings.SplitN(string(it.Item().Key()), ":", keySplitParts)[0]
			stats[run]++
		}
		return nil
	})
	return stats, err
}

// Restore copies the parameters of an epoch into live parameter slices.
// Every stored parameter must exist in params with the same length.
func (s *Store) Restore(runID string, epoch int, params map[string][]float32) error {
	stored, err := s.Load(runID, epoch)
	if err != nil {
		return err
	}
	for name, values := range stored {
		dst, ok := params[name]
		if !ok {
			return fmt.Errorf("checkpoint parameter %s has no counterpart in the network", name)
		}
		if len(dst) != len(values) {
			return fmt.Errorf("checkpoint parameter %s has %d value(s), network has %d", name, len(values), len(dst))
		}
		copy(dst, values)
	}
	log.Printf("[Checkpoint] Restored run %s epoch %d (%d parameter(s))", runID, epoch, len(stored))
	return nil
}

// Backup streams a full backup of the store.
func (s *Store) Backup(w io.Writer) error {
	_, err := s.db.Backup(w, 0)
	return err
}

// LoadBackup merges a backup produced by Backup into the store.
func (s *Store) LoadBackup(r io.Reader) error {
	return s.db.Load(r, maxPendingLoad)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encodeFloats(values []float32) []byte {
	out := make([]byte, len(values)*float32Bytes)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*float32Bytes:], math.Float32bits(v))
	}
	return out
}

func decodeFloats(data []byte) ([]float32, error) {
	if len(data)%float32Bytes != 0 {
		return nil, fmt.Errorf("value of %d byte(s) is not a float32 vector", len(data))
	}
	out := make([]float32, len(data)/float32Bytes)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*float32Bytes:]))
	}
	return out, nil
}
