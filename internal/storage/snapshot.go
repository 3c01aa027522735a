package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

const (
	snapshotMagic   = 0x54544343 // "CCTT"
	snapshotVersion = 1

	// maxSnapshotWords caps the decoded size at 32 GiB, twice the words
	// of the largest table the engine allocates in practice.
	maxSnapshotWords = 1 << 32
)

// ErrCorruptSnapshot is returned for snapshots that fail to decode or
// verify.
var ErrCorruptSnapshot = errors.New("storage: corrupt snapshot")

// snapshotHeader precedes the zstd-compressed little-endian words.
type snapshotHeader struct {
	Magic      uint32
	Version    uint32
	Generation uint32
	Words      uint64
	Checksum   uint64 // xxhash64 of the uncompressed words
}

// SaveSnapshot stores a transposition table image under name.
func (s *Storage) SaveSnapshot(name string, generation uint8, words []uint64) error {
	raw := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(raw[8*i:], w)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return fmt.Errorf("open zstd encoder: %w", err)
	}
	defer enc.Close()

	var buf bytes.Buffer
	h := snapshotHeader{
		Magic:      snapshotMagic,
		Version:    snapshotVersion,
		Generation: uint32(generation),
		Words:      uint64(len(words)),
		Checksum:   xxhash.Sum64(raw),
	}
	if err := binary.Write(&buf, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	buf.Write(enc.EncodeAll(raw, nil))

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixTTSnapshots+name), buf.Bytes())
	}); err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}
	s.log.Debug().
		Str("name", name).
		Int("words", len(words)).
		Int("bytes", buf.Len()).
		Msg("tt snapshot saved")
	return nil
}

// LoadSnapshot returns the table image stored under name.
func (s *Storage) LoadSnapshot(name string) (uint8, []uint64, error) {
	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixTTSnapshots + name))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	return decodeSnapshot(blob)
}

func decodeSnapshot(blob []byte) (uint8, []uint64, error) {
	r := bytes.NewReader(blob)
	var h snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return 0, nil, fmt.Errorf("%w: header: %v", ErrCorruptSnapshot, err)
	}
	if h.Magic != snapshotMagic || h.Version != snapshotVersion {
		return 0, nil, fmt.Errorf("%w: magic %#x version %d", ErrCorruptSnapshot, h.Magic, h.Version)
	}

	if h.Words > maxSnapshotWords {
		return 0, nil, fmt.Errorf("%w: %d words", ErrCorruptSnapshot, h.Words)
	}
	payload := blob[len(blob)-r.Len():]

	// The decoder may not grow much past the size the header announces,
	// so a lying frame fails instead of exhausting memory. The floor keeps
	// the minimum zstd window legal for tiny tables.
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(max(8*h.Words, 1<<20)))
	if err != nil {
		return 0, nil, fmt.Errorf("open zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if uint64(len(raw)) != 8*h.Words {
		return 0, nil, fmt.Errorf("%w: %d bytes for %d words", ErrCorruptSnapshot, len(raw), h.Words)
	}
	if got := xxhash.Sum64(raw); got != h.Checksum {
		return 0, nil, fmt.Errorf("%w: checksum %016x, header says %016x", ErrCorruptSnapshot, got, h.Checksum)
	}

	words := make([]uint64, h.Words)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(raw[8*i:])
	}
	return uint8(h.Generation), words, nil
}

// DeleteSnapshot removes the snapshot stored under name.
func (s *Storage) DeleteSnapshot(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixTTSnapshots + name))
	})
}
