package history

import (
	"fmt"

	"github.com/solsteward/steward/ringbuffer"
)

// ClusterEntry is one epoch's worth of cluster-wide telemetry: confirmed
// block count and the epoch's start timestamp (spec §3.4).
type ClusterEntry struct {
	epoch               uint64
	TotalBlocks         uint64
	EpochStartTimestamp uint64
}

// Epoch implements ringbuffer.Entry[ClusterEntry].
func (c ClusterEntry) Epoch() uint64 { return c.epoch }

func defaultClusterEntry(epoch uint64) ClusterEntry {
	return ClusterEntry{epoch: epoch, TotalBlocks: 0, EpochStartTimestamp: 0}
}

// ClusterHistory is the singleton cluster-wide record: a ring buffer of
// (epoch, blocks produced, epoch start timestamp), plus the last slot the
// slot-history sysvar was scanned up to (spec §3.4).
type ClusterHistory struct {
	Buf            *ringbuffer.Buf[ClusterEntry]
	LastUpdateSlot uint64
}

// NewClusterHistory creates an empty cluster history record.
func NewClusterHistory() *ClusterHistory {
	return &ClusterHistory{Buf: ringbuffer.NewDefault[ClusterEntry]()}
}

// SlotBitmap abstracts the cluster slot-history system variable: a compact
// bitmap over a trailing window of slots, where a set bit means that slot
// produced a confirmed block. This is a thin seam over an external
// collaborator (spec §1 treats the slot-history sysvar read as out of
// scope); only the counting logic below is in scope.
type SlotBitmap interface {
	// Contains reports whether slot is covered by the bitmap at all (it may
	// have aged out of the sysvar's retained window).
	Contains(slot uint64) bool
	// IsSet reports whether slot produced a confirmed block. Only valid
	// when Contains(slot) is true.
	IsSet(slot uint64) bool
}

// UpdateClusterHistory reads bitmap over the slot window
// (LastUpdateSlot, currentSlot], counts confirmed blocks per epoch
// (partitioned by epochOf), and writes or updates one ClusterEntry per
// touched epoch. Partial epochs are allowed: an epoch touched by only part
// of its slot range still gets an entry with the partial count, which a
// later call extends as more of that epoch's window is scanned.
//
// epochOf and epochStartTimestamp let the caller supply the chain's
// slot-to-epoch mapping and epoch-start wallclock time without this package
// depending on a concrete chain client (spec §1's external-collaborator
// boundary).
func (c *ClusterHistory) UpdateClusterHistory(bitmap SlotBitmap, currentSlot uint64, epochOf func(slot uint64) uint64, epochStartTimestamp func(epoch uint64) uint64) error {
	if currentSlot <= c.LastUpdateSlot {
		return nil
	}

	counts := make(map[uint64]uint64)
	for slot := c.LastUpdateSlot + 1; slot <= currentSlot; slot++ {
		if !bitmap.Contains(slot) {
			continue
		}
		if !bitmap.IsSet(slot) {
			continue
		}
		counts[epochOf(slot)]++
	}

	// Touch epochs in ascending order so ring buffer pushes stay
	// non-decreasing even when an epoch in the window produced zero
	// confirmed blocks (it still needs an entry for delinquency scoring
	// to treat it as "cluster blocks present").
	touched := make(map[uint64]bool)
	for slot := c.LastUpdateSlot + 1; slot <= currentSlot; slot++ {
		touched[epochOf(slot)] = true
	}
	epochs := make([]uint64, 0, len(touched))
	for e := range touched {
		epochs = append(epochs, e)
	}
	sortUint64(epochs)

	for _, epoch := range epochs {
		existing := defaultClusterEntry(epoch)
		if last, ok := c.Buf.Last(); ok && last.Epoch() == epoch {
			existing = last
		} else if e, ok := c.Buf.At(epoch); ok {
			existing = e
		}
		existing.TotalBlocks += counts[epoch]
		if existing.EpochStartTimestamp == 0 {
			existing.EpochStartTimestamp = epochStartTimestamp(epoch)
		}
		if err := c.Buf.Push(existing, defaultClusterEntry); err != nil {
			return fmt.Errorf("update-cluster-history: %w", err)
		}
	}

	c.LastUpdateSlot = currentSlot
	return nil
}

// BlocksAt returns the confirmed block count for epoch, and true iff an
// entry exists for it.
func (c *ClusterHistory) BlocksAt(epoch uint64) (uint64, bool) {
	e, ok := c.Buf.At(epoch)
	if !ok {
		return 0, false
	}
	return e.TotalBlocks, true
}

func sortUint64(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
