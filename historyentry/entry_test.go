package historyentry

import "testing"

func TestDefaultEntryHasSentinelFields(t *testing.T) {
	e := Default(7)
	if !e.IsDefault() {
		t.Fatal("Default() entry should report IsDefault")
	}
	if e.Epoch() != 7 {
		t.Fatalf("Default() epoch tag = %d, want 7", e.Epoch())
	}
	if e.HasCommission() || e.HasMEVCommission() || e.HasEpochCredits() ||
		e.HasSuperminority() || e.HasActivatedStake() {
		t.Fatal("Default() entry should report no fields as set")
	}
}

func TestWithEpochStampsEpochWithoutDisturbingFields(t *testing.T) {
	e := Default(0)
	e.Commission = 5
	e = e.WithEpoch(42)
	if e.Epoch() != 42 {
		t.Fatalf("Epoch() = %d, want 42", e.Epoch())
	}
	if !e.HasCommission() || e.Commission != 5 {
		t.Fatalf("WithEpoch should not disturb other fields, got commission=%d", e.Commission)
	}
}
