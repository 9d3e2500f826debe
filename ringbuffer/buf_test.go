package ringbuffer

import "testing"

type testEntry struct {
	epoch uint64
	value uint64
}

func (e testEntry) Epoch() uint64 { return e.epoch }

func zeroEntry(epoch uint64) testEntry {
	return testEntry{epoch: epoch, value: 0}
}

func TestPushEmptyBecomesHead(t *testing.T) {
	b := New[testEntry](8)
	if !b.IsEmpty() {
		t.Fatal("new buffer should be empty")
	}
	if err := b.Push(testEntry{epoch: 5, value: 100}, zeroEntry); err != nil {
		t.Fatalf("push: %v", err)
	}
	if b.IsEmpty() {
		t.Fatal("buffer should not be empty after push")
	}
	last, ok := b.Last()
	if !ok || last.epoch != 5 || last.value != 100 {
		t.Fatalf("last = %+v, %v", last, ok)
	}
}

func TestPushSameEpochMerges(t *testing.T) {
	b := New[testEntry](8)
	_ = b.Push(testEntry{epoch: 5, value: 100}, zeroEntry)
	_ = b.Push(testEntry{epoch: 5, value: 200}, zeroEntry)
	last, _ := b.Last()
	if last.value != 200 {
		t.Fatalf("expected same-epoch merge to overwrite value, got %d", last.value)
	}
	if b.HeadEpoch() != 5 {
		t.Fatalf("head epoch changed on same-epoch merge: %d", b.HeadEpoch())
	}
}

func TestPushAdvanceFillsSkippedSlotsWithZero(t *testing.T) {
	b := New[testEntry](8)
	_ = b.Push(testEntry{epoch: 5, value: 100}, zeroEntry)
	if err := b.Push(testEntry{epoch: 8, value: 300}, zeroEntry); err != nil {
		t.Fatalf("push: %v", err)
	}
	for _, e := range []uint64{6, 7} {
		entry, ok := b.At(e)
		if !ok {
			t.Fatalf("expected skipped epoch %d to be present as zero entry", e)
		}
		if entry.value != 0 {
			t.Fatalf("skipped epoch %d should be zero-valued, got %+v", e, entry)
		}
	}
	last, _ := b.Last()
	if last.epoch != 8 || last.value != 300 {
		t.Fatalf("unexpected head after advance: %+v", last)
	}
}

func TestPushInPlaceUpdateWithinWindow(t *testing.T) {
	b := New[testEntry](8)
	_ = b.Push(testEntry{epoch: 5, value: 1}, zeroEntry)
	_ = b.Push(testEntry{epoch: 6, value: 2}, zeroEntry)
	_ = b.Push(testEntry{epoch: 7, value: 3}, zeroEntry)
	if err := b.Push(testEntry{epoch: 6, value: 99}, zeroEntry); err != nil {
		t.Fatalf("in-place update should succeed: %v", err)
	}
	entry, ok := b.At(6)
	if !ok || entry.value != 99 {
		t.Fatalf("expected in-place update, got %+v, %v", entry, ok)
	}
	if b.HeadEpoch() != 7 {
		t.Fatalf("head should not move on an older in-place update, got %d", b.HeadEpoch())
	}
}

func TestPushOutOfRangeFails(t *testing.T) {
	b := New[testEntry](4)
	for e := uint64(0); e < 10; e++ {
		_ = b.Push(testEntry{epoch: e, value: e}, zeroEntry)
	}
	// Head is at epoch 9 now, capacity 4: oldest retained is epoch 6.
	if err := b.Push(testEntry{epoch: 5, value: 1}, zeroEntry); err == nil {
		t.Fatal("expected ErrEpochOutOfRange for a push older than the retained window")
	}
}

// TestWrapBehaviorScenarioS5 mirrors spec scenario S5: push epochs 0..=511, then push
// epoch 512; slot 0 now holds epoch 512, and range(1,512) returns 512
// entries with position 0 = epoch 1 ... position 511 = epoch 512.
func TestWrapBehaviorScenarioS5(t *testing.T) {
	b := New[testEntry](512)
	for e := uint64(0); e <= 511; e++ {
		if err := b.Push(testEntry{epoch: e, value: e}, zeroEntry); err != nil {
			t.Fatalf("push epoch %d: %v", e, err)
		}
	}
	if err := b.Push(testEntry{epoch: 512, value: 512}, zeroEntry); err != nil {
		t.Fatalf("push epoch 512: %v", err)
	}
	if b.head != 0 {
		t.Fatalf("expected head to wrap to slot 0, got %d", b.head)
	}
	if b.slots[0].epoch != 512 {
		t.Fatalf("expected slot 0 to hold epoch 512, got %d", b.slots[0].epoch)
	}

	rng, err := b.Range(1, 512)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rng) != 512 {
		t.Fatalf("expected 512 entries, got %d", len(rng))
	}
	for i, opt := range rng {
		wantEpoch := uint64(1 + i)
		if !opt.Present {
			t.Fatalf("position %d: expected present entry for epoch %d", i, wantEpoch)
		}
		if opt.Value.epoch != wantEpoch {
			t.Fatalf("position %d: expected epoch %d, got %d", i, wantEpoch, opt.Value.epoch)
		}
	}
}

func TestRangeMissingEpochsAreAbsent(t *testing.T) {
	b := New[testEntry](16)
	_ = b.Push(testEntry{epoch: 100, value: 1}, zeroEntry)
	rng, err := b.Range(90, 100)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	for i, opt := range rng {
		epoch := uint64(90 + i)
		if epoch < 85 { // outside retained window (head=100, cap=16 -> oldest 85)
			continue
		}
		if epoch == 100 {
			if !opt.Present {
				t.Fatalf("epoch 100 should be present")
			}
			continue
		}
		if opt.Present {
			t.Fatalf("epoch %d should be absent (never pushed)", epoch)
		}
	}
}

func TestRangeStartAfterEndIsError(t *testing.T) {
	b := New[testEntry](16)
	_ = b.Push(testEntry{epoch: 10, value: 1}, zeroEntry)
	if _, err := b.Range(10, 5); err == nil {
		t.Fatal("expected error when start > end")
	}
}

func TestLastMatchingScansBackwardsForFirstSetValue(t *testing.T) {
	b := New[testEntry](16)
	_ = b.Push(testEntry{epoch: 1, value: 0}, zeroEntry)
	_ = b.Push(testEntry{epoch: 2, value: 0}, zeroEntry)
	_ = b.Push(testEntry{epoch: 3, value: 42}, zeroEntry)
	_ = b.Push(testEntry{epoch: 4, value: 0}, zeroEntry)

	isSet := func(e testEntry) bool { return e.value != 0 }
	entry, ok := b.LastMatching(isSet)
	if !ok {
		t.Fatal("expected to find a matching entry")
	}
	if entry.epoch != 3 || entry.value != 42 {
		t.Fatalf("expected epoch 3 value 42, got %+v", entry)
	}
}

func TestLastMatchingNoneFound(t *testing.T) {
	b := New[testEntry](16)
	_ = b.Push(testEntry{epoch: 1, value: 0}, zeroEntry)
	_, ok := b.LastMatching(func(e testEntry) bool { return e.value != 0 })
	if ok {
		t.Fatal("expected no match")
	}
}

func TestWindowReportsOldestRetainedEpoch(t *testing.T) {
	b := New[testEntry](4)
	if _, ok := b.Window(); ok {
		t.Fatal("empty buffer should report no window")
	}
	for e := uint64(0); e < 10; e++ {
		_ = b.Push(testEntry{epoch: e, value: e}, zeroEntry)
	}
	oldest, ok := b.Window()
	if !ok {
		t.Fatal("expected a window")
	}
	if oldest != 6 {
		t.Fatalf("expected oldest retained epoch 6 (head 9, cap 4), got %d", oldest)
	}
}
