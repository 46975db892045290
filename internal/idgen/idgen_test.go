package idgen

import (
	"sort"
	"testing"
	"time"
)

func TestNewShape(t *testing.T) {
	prefixes := []string{
		PrefixEntity, PrefixAssertion, PrefixPropertyValue,
		PrefixChangeEvent, PrefixImportRun, PrefixSource,
	}
	for _, p := range prefixes {
		id := New(p)
		if err := Validate(id, p); err != nil {
			t.Errorf("New(%q) produced invalid id: %v", p, err)
		}
		if len(id) > MaxIDLength {
			t.Errorf("id %q exceeds %d bytes", id, MaxIDLength)
		}
	}
}

func TestNewIsTimeSortable(t *testing.T) {
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = New(PrefixAssertion)
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids not generated in sortable order at index %d: %s vs %s", i, ids[i], sorted[i])
		}
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := New(PrefixEntity)
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		prefix  string
		wantErr bool
	}{
		{"valid", "ent_0195a8f2c3d44e5f8a9b0c1d2e3f4a5b", PrefixEntity, false},
		{"wrong prefix", "ent_0195a8f2c3d44e5f8a9b0c1d2e3f4a5b", PrefixAssertion, true},
		{"short payload", "ent_0195a8f2", PrefixEntity, true},
		{"non-hex payload", "ent_zzzza8f2c3d44e5f8a9b0c1d2e3f4a5b", PrefixEntity, true},
		{"empty", "", PrefixEntity, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.id, tt.prefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q, %q) error = %v, wantErr %v", tt.id, tt.prefix, err, tt.wantErr)
			}
		})
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("after Advance, Now() = %v", got)
	}
	later := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Fatalf("after Set, Now() = %v", c.Now())
	}
}

func TestWallClockIsUTC(t *testing.T) {
	if loc := (WallClock{}).Now().Location(); loc != time.UTC {
		t.Fatalf("WallClock location = %v, want UTC", loc)
	}
}
