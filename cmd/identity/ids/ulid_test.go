package ids

import (
	"testing"
	"time"
)

func TestNewULID(t *testing.T) {
	t.Parallel()

	earlier := NewULID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := NewULID(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))

	if len(earlier) != 26 || !Valid(earlier) {
		t.Fatalf("invalid ulid %q", earlier)
	}
	if earlier >= later {
		t.Fatalf("ulids should sort by time: %q >= %q", earlier, later)
	}
	if Valid("not-a-ulid") {
		t.Fatalf("garbage accepted")
	}
	if !Valid(NewULID(time.Time{})) {
		t.Fatalf("zero time should fall back to now")
	}
}
