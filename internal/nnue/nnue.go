// Package nnue implements the quantized, incrementally updated neural
// network evaluator.
//
// The input layer is a king-bucketed 768-feature board encoding seen from
// each side. Its output, the accumulator, is kept per ply and updated
// lazily from recorded feature diffs; the small dense layers on top run in
// bounded integer arithmetic.
package nnue

import "github.com/hailam/chesscore/internal/board"

// Network architecture constants
const (
	InputSize     = 768 // 2 sides * 6 piece types * 64 squares
	Buckets       = 4   // king buckets per half board
	L1Size        = 256 // accumulator width per perspective
	L2Size        = 16
	L3Size        = 32
	OutputBuckets = 8

	// Quantization constants
	QA    = 255 // activation ceiling and feature transformer scale
	QB    = 64  // dense layer weight scale
	Scale = 400 // centipawn scale of the output

	// MaxL1Weight bounds |w| for the first dense layer so that
	// 2*L1Size * QA^2 * MaxL1Weight fits in an int32.
	MaxL1Weight = 64
	// MaxDenseWeight bounds the remaining dense layer weights.
	MaxDenseWeight = 1 << 15
	// MaxDenseBias bounds every dense layer bias. With the weight bounds
	// the largest layer sum, 32 * QA * MaxDenseWeight, plus a bias stays
	// within an int32.
	MaxDenseBias = 1 << 24

	// StackSize is the depth of the accumulator arena.
	StackSize = 256
)

// kingBucket maps a king square, relative to its owner and mirrored onto
// files a-d, to its feature transformer bucket.
var kingBucket = [64]int{
	0, 0, 1, 1, 1, 1, 0, 0,
	2, 2, 2, 2, 2, 2, 2, 2,
	3, 3, 3, 3, 3, 3, 3, 3,
	3, 3, 3, 3, 3, 3, 3, 3,
	3, 3, 3, 3, 3, 3, 3, 3,
	3, 3, 3, 3, 3, 3, 3, 3,
	3, 3, 3, 3, 3, 3, 3, 3,
	3, 3, 3, 3, 3, 3, 3, 3,
}

// KingBucket returns the bucket selected by perspective's king on ksq.
func KingBucket(perspective board.Color, ksq board.Square) int {
	return kingBucket[ksq.Relative(perspective)]
}

// mirrored reports whether the half board is flipped left to right.
func mirrored(ksq board.Square) bool { return ksq.File() >= 4 }

// bucketKey identifies the weight subset in use: bucket plus mirror.
// Any change of key for a perspective invalidates incremental updates.
func bucketKey(perspective board.Color, ksq board.Square) int {
	key := KingBucket(perspective, ksq) * 2
	if mirrored(ksq) {
		key++
	}
	return key
}

// outputBucket picks the dense layer set by material on the board.
func outputBucket(pieces int) int {
	const div = (32 + OutputBuckets - 1) / OutputBuckets
	b := (pieces - 2) / div
	if b < 0 {
		return 0
	}
	if b >= OutputBuckets {
		return OutputBuckets - 1
	}
	return b
}
