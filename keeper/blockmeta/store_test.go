package blockmeta

import "testing"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordSlotAndContainsIsSet(t *testing.T) {
	s := newTestStore(t)

	if s.Contains(100) {
		t.Fatal("expected slot 100 absent before recording")
	}
	if err := s.RecordSlot(100, true); err != nil {
		t.Fatalf("RecordSlot: %v", err)
	}
	if !s.Contains(100) {
		t.Fatal("expected slot 100 present after recording")
	}
	if !s.IsSet(100) {
		t.Fatal("expected slot 100 produced")
	}
	if s.IsSet(101) {
		t.Fatal("expected unset slot to report false, not true")
	}
}

func TestRecordSlotUpsertOverwritesPreviousValue(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordSlot(50, false); err != nil {
		t.Fatalf("RecordSlot: %v", err)
	}
	if s.IsSet(50) {
		t.Fatal("expected slot 50 initially unproduced")
	}
	if err := s.RecordSlot(50, true); err != nil {
		t.Fatalf("RecordSlot overwrite: %v", err)
	}
	if !s.IsSet(50) {
		t.Fatal("expected slot 50 produced after overwrite")
	}
}

func TestLatestSlotReportsMaxAndEmptyState(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.LatestSlot(); ok {
		t.Fatal("expected no latest slot for empty store")
	}
	for _, slot := range []uint64{10, 30, 20} {
		if err := s.RecordSlot(slot, true); err != nil {
			t.Fatalf("RecordSlot(%d): %v", slot, err)
		}
	}
	latest, ok := s.LatestSlot()
	if !ok || latest != 30 {
		t.Fatalf("LatestSlot() = (%d, %v), want (30, true)", latest, ok)
	}
}

func TestSaveAndLoadHistoryEntries(t *testing.T) {
	s := newTestStore(t)

	entries, err := s.LoadHistoryEntries()
	if err != nil {
		t.Fatalf("LoadHistoryEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no checkpointed entries yet, got %d", len(entries))
	}

	var va1, va2 [32]byte
	va1[0] = 1
	va2[0] = 2
	if err := s.SaveHistoryEntry(va1, []byte("entry-one")); err != nil {
		t.Fatalf("SaveHistoryEntry: %v", err)
	}
	if err := s.SaveHistoryEntry(va2, []byte("entry-two")); err != nil {
		t.Fatalf("SaveHistoryEntry: %v", err)
	}

	entries, err = s.LoadHistoryEntries()
	if err != nil {
		t.Fatalf("LoadHistoryEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if string(entries[va1]) != "entry-one" {
		t.Fatalf("entries[va1] = %q, want entry-one", entries[va1])
	}
	if string(entries[va2]) != "entry-two" {
		t.Fatalf("entries[va2] = %q, want entry-two", entries[va2])
	}
}

func TestSaveHistoryEntryUpsertOverwritesPreviousValue(t *testing.T) {
	s := newTestStore(t)

	var va [32]byte
	va[0] = 9
	if err := s.SaveHistoryEntry(va, []byte("first")); err != nil {
		t.Fatalf("SaveHistoryEntry: %v", err)
	}
	if err := s.SaveHistoryEntry(va, []byte("second")); err != nil {
		t.Fatalf("SaveHistoryEntry overwrite: %v", err)
	}
	entries, err := s.LoadHistoryEntries()
	if err != nil {
		t.Fatalf("LoadHistoryEntries: %v", err)
	}
	if string(entries[va]) != "second" {
		t.Fatalf("entries[va] = %q, want second", entries[va])
	}
}
