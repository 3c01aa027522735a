package nnue

import (
	"encoding/binary"

	"github.com/hailam/chesscore/internal/board"
	"github.com/hailam/chesscore/internal/util"
	"lukechampine.com/frand"
)

// Network holds the quantized weights. It is immutable once loaded and
// shared by every search worker.
type Network struct {
	// Feature transformer: Buckets*InputSize rows of L1Size weights.
	FTWeights []int16
	FTBias    [L1Size]int16

	// Dense layers, one set per output bucket. The first layer reads the
	// side to move's accumulator followed by the opponent's.
	L1Weights [OutputBuckets][L2Size][2 * L1Size]int8
	L1Bias    [OutputBuckets][L2Size]int32
	L2Weights [OutputBuckets][L3Size][L2Size]int32
	L2Bias    [OutputBuckets][L3Size]int32
	L3Weights [OutputBuckets][L3Size]int32
	L3Bias    [OutputBuckets]int32
}

func newNetwork() *Network {
	return &Network{FTWeights: make([]int16, Buckets*InputSize*L1Size)}
}

// row returns the feature transformer weights of one input.
func (n *Network) row(idx int) []int16 {
	return n.FTWeights[idx*L1Size : (idx+1)*L1Size]
}

// NewRandomNetwork builds a deterministic network from seed. The opponent
// half of the first dense layer mirrors the side to move's half with the
// sign flipped and all biases are zero, so symmetric positions evaluate
// to exactly zero.
func NewRandomNetwork(seed uint64) *Network {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	rng := frand.NewCustom(key[:], 1024, 12)
	span := func(lim int) int { return rng.Intn(2*lim+1) - lim }

	n := newNetwork()
	for i := range n.FTWeights {
		n.FTWeights[i] = int16(span(12))
	}
	for i := range n.FTBias {
		n.FTBias[i] = int16(32 + rng.Intn(64))
	}
	for b := 0; b < OutputBuckets; b++ {
		for i := 0; i < L2Size; i++ {
			for j := 0; j < L1Size; j++ {
				w := int8(span(MaxL1Weight))
				n.L1Weights[b][i][j] = w
				n.L1Weights[b][i][L1Size+j] = -w
			}
		}
		for i := 0; i < L3Size; i++ {
			for j := 0; j < L2Size; j++ {
				n.L2Weights[b][i][j] = int32(span(QB))
			}
			n.L3Weights[b][i] = int32(span(4))
		}
	}
	return n
}

// ComputeAccumulator derives perspective's accumulator from scratch.
func (n *Network) ComputeAccumulator(pos *board.Position, perspective board.Color) [L1Size]int16 {
	acc := n.FTBias
	ksq := pos.King(perspective)
	for _, f := range activeFeatures(pos) {
		w := n.row(FeatureIndex(perspective, ksq, f))
		for i := range acc {
			acc[i] += w[i]
		}
	}
	return acc
}

// Evaluate scores pos from scratch, without an accumulator stack.
func (n *Network) Evaluate(pos *board.Position) int {
	us := pos.SideToMove()
	stm := n.ComputeAccumulator(pos, us)
	nstm := n.ComputeAccumulator(pos, us.Other())
	return n.forward(&stm, &nstm, outputBucket(pos.PieceCount()))
}

// screlu is the squared clipped ReLU: clamp(x, 0, QA)^2.
func screlu(x int16) int32 {
	v := int32(util.Clamp(x, 0, QA))
	return v * v
}

// forward runs the dense layers. Every intermediate fits in an int32 given
// the weight and bias bounds enforced at load time; only the final rescale
// widens.
func (n *Network) forward(stm, nstm *[L1Size]int16, bucket int) int {
	// Side to move first, then the opponent, matching the L1 rows.
	var act [2 * L1Size]int32
	for j := 0; j < L1Size; j++ {
		act[j] = screlu(stm[j])
		act[L1Size+j] = screlu(nstm[j])
	}

	var h1 [L2Size]int32
	for i := range h1 {
		w := &n.L1Weights[bucket][i]
		var sum int32
		for j, a := range act {
			sum += a * int32(w[j])
		}
		// QA^2 * QB -> QA * QB
		z := sum/QA + n.L1Bias[bucket][i]
		h1[i] = util.Clamp(z/QB, 0, QA)
	}

	var h2 [L3Size]int32
	for i := range h2 {
		z := n.L2Bias[bucket][i]
		for j, v := range h1 {
			z += v * n.L2Weights[bucket][i][j]
		}
		h2[i] = util.Clamp(z/QB, 0, QA)
	}

	out := n.L3Bias[bucket]
	for j, v := range h2 {
		out += v * n.L3Weights[bucket][j]
	}
	return int(int64(out) * Scale / (QA * QB))
}
