// Package bitmask implements a fixed-capacity bit set sized for the
// steward state machine's progress, instant-unstake, and removal sets
// (spec.md §3.5): Bitmask[MAX] backed by ceil(MAX/64) uint64 words, matching
// the on-chain packed layout of §6.
package bitmask

import "fmt"

// Bitmask is a fixed-capacity bit set of `size` bits, stored as ceil(size/64)
// uint64 words. The zero value is not usable; construct with New.
type Bitmask struct {
	size  int
	words []uint64
}

// New creates a Bitmask with all bits clear, sized for `size` validator
// indices.
func New(size int) *Bitmask {
	if size <= 0 {
		panic("bitmask: size must be positive")
	}
	return &Bitmask{
		size:  size,
		words: make([]uint64, (size+63)/64),
	}
}

// Size returns the number of addressable bits.
func (b *Bitmask) Size() int {
	return b.size
}

func (b *Bitmask) checkIndex(index int) error {
	if index < 0 || index >= b.size {
		return fmt.Errorf("bitmask: index %d out of range [0, %d)", index, b.size)
	}
	return nil
}

// Set sets the bit at index. Returns an error if index is out of range.
func (b *Bitmask) Set(index int) error {
	if err := b.checkIndex(index); err != nil {
		return err
	}
	b.words[index/64] |= 1 << uint(index%64)
	return nil
}

// Clear unsets the bit at index. Returns an error if index is out of range.
func (b *Bitmask) Clear(index int) error {
	if err := b.checkIndex(index); err != nil {
		return err
	}
	b.words[index/64] &^= 1 << uint(index%64)
	return nil
}

// IsSet reports whether the bit at index is set. Out-of-range indices
// report false rather than erroring, matching the read-only query style of
// most callers (progress checks, filter composition).
func (b *Bitmask) IsSet(index int) bool {
	if index < 0 || index >= b.size {
		return false
	}
	return b.words[index/64]&(1<<uint(index%64)) != 0
}

// ClearAll unsets every bit.
func (b *Bitmask) ClearAll() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// PopCount returns the number of set bits.
func (b *Bitmask) PopCount() int {
	count := 0
	for _, w := range b.words {
		for w != 0 {
			w &= w - 1
			count++
		}
	}
	return count
}

// IsFullUpTo reports whether every bit in [0, n) is set, used to detect
// "progress complete for the first n validators" (spec §4.5's terminal
// condition for ComputeScores/ComputeInstantUnstake/Rebalance).
func (b *Bitmask) IsFullUpTo(n int) bool {
	if n < 0 || n > b.size {
		return false
	}
	for i := 0; i < n; i++ {
		if !b.IsSet(i) {
			return false
		}
	}
	return true
}

// OnlyBelow reports whether every set bit has an index strictly less than n,
// i.e. invariant 2 of spec §3.5 ("all bitmasks have bits set only for
// indices < num_pool_validators").
func (b *Bitmask) OnlyBelow(n int) bool {
	for i := n; i < b.size; i++ {
		if b.IsSet(i) {
			return false
		}
	}
	return true
}

// Indices returns the set bit positions in ascending order.
func (b *Bitmask) Indices() []int {
	var out []int
	for i := 0; i < b.size; i++ {
		if b.IsSet(i) {
			out = append(out, i)
		}
	}
	return out
}
