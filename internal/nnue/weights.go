package nnue

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// Weight file format constants
const (
	MagicNumber = 0x4E4E4343 // "CCNN"
	Version     = 2
)

var (
	ErrBadMagic    = errors.New("nnue: bad magic number")
	ErrBadVersion  = errors.New("nnue: unsupported version")
	ErrShape       = errors.New("nnue: architecture mismatch")
	ErrChecksum    = errors.New("nnue: payload checksum mismatch")
	ErrWeightRange = errors.New("nnue: weight out of range")
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// FileHeader precedes the little-endian weight payload.
type FileHeader struct {
	Magic         uint32
	Version       uint32
	InputSize     uint32
	Buckets       uint32
	L1Size        uint32
	L2Size        uint32
	L3Size        uint32
	OutputBuckets uint32
	PayloadSize   uint64
	Checksum      uint64 // xxhash64 of the payload
}

func expectedHeader() FileHeader {
	return FileHeader{
		Magic:         MagicNumber,
		Version:       Version,
		InputSize:     InputSize,
		Buckets:       Buckets,
		L1Size:        L1Size,
		L2Size:        L2Size,
		L3Size:        L3Size,
		OutputBuckets: OutputBuckets,
	}
}

// payload lists the weight arrays in file order.
func (n *Network) payload() []any {
	return []any{
		n.FTWeights, &n.FTBias,
		&n.L1Weights, &n.L1Bias,
		&n.L2Weights, &n.L2Bias,
		&n.L3Weights, &n.L3Bias,
	}
}

func payloadSize() uint64 {
	const ft = Buckets*InputSize*L1Size*2 + L1Size*2
	const dense = L2Size*2*L1Size + L2Size*4 + L3Size*L2Size*4 + L3Size*4 + L3Size*4 + 4
	return ft + OutputBuckets*dense
}

// LoadNetwork reads a weight blob, optionally wrapped in a zstd frame.
// Any structural problem is reported as one of the package's sentinel
// errors; a network that fails to load must not be used.
func LoadNetwork(r io.Reader) (*Network, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		return readNetwork(dec)
	}
	return readNetwork(br)
}

// LoadNetworkFile opens and loads a weight file.
func LoadNetworkFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open weights file: %w", err)
	}
	defer f.Close()

	n, err := LoadNetwork(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return n, nil
}

func readNetwork(r io.Reader) (*Network, error) {
	var h FileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	want := expectedHeader()
	if h.Magic != want.Magic {
		return nil, fmt.Errorf("%w: %#x", ErrBadMagic, h.Magic)
	}
	if h.Version != want.Version {
		return nil, fmt.Errorf("%w: %d, want %d", ErrBadVersion, h.Version, want.Version)
	}
	size, sum := h.PayloadSize, h.Checksum
	h.PayloadSize, h.Checksum = 0, 0
	if h != want {
		return nil, fmt.Errorf("%w: %+v", ErrShape, h)
	}
	if size != payloadSize() {
		return nil, fmt.Errorf("%w: payload of %d bytes, want %d", ErrShape, size, payloadSize())
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if got := xxhash.Sum64(buf); got != sum {
		return nil, fmt.Errorf("%w: %016x, header says %016x", ErrChecksum, got, sum)
	}

	n := newNetwork()
	pr := bytes.NewReader(buf)
	for _, v := range n.payload() {
		if err := binary.Read(pr, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// validate enforces the weight and bias bounds the integer forward pass
// relies on.
func (n *Network) validate() error {
	for b := range n.L1Weights {
		for i := range n.L1Weights[b] {
			for j, w := range n.L1Weights[b][i] {
				if w < -MaxL1Weight || w > MaxL1Weight {
					return fmt.Errorf("%w: l1[%d][%d][%d] = %d", ErrWeightRange, b, i, j, w)
				}
			}
		}
		for i := range n.L2Weights[b] {
			for j, w := range n.L2Weights[b][i] {
				if w < -MaxDenseWeight || w > MaxDenseWeight {
					return fmt.Errorf("%w: l2[%d][%d][%d] = %d", ErrWeightRange, b, i, j, w)
				}
			}
		}
		for j, w := range n.L3Weights[b] {
			if w < -MaxDenseWeight || w > MaxDenseWeight {
				return fmt.Errorf("%w: l3[%d][%d] = %d", ErrWeightRange, b, j, w)
			}
		}

		biases := [][]int32{n.L1Bias[b][:], n.L2Bias[b][:], {n.L3Bias[b]}}
		for l, bs := range biases {
			for i, v := range bs {
				if v < -MaxDenseBias || v > MaxDenseBias {
					return fmt.Errorf("%w: l%d bias[%d][%d] = %d", ErrWeightRange, l+1, b, i, v)
				}
			}
		}
	}
	return nil
}

// Save writes the network in the uncompressed blob format.
func (n *Network) Save(w io.Writer) error {
	var buf bytes.Buffer
	for _, v := range n.payload() {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}
	h := expectedHeader()
	h.PayloadSize = uint64(buf.Len())
	h.Checksum = xxhash.Sum64(buf.Bytes())
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// SaveCompressed writes the blob inside a zstd frame.
func (n *Network) SaveCompressed(w io.Writer) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("open zstd writer: %w", err)
	}
	if err := n.Save(enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
