package domain

import "testing"

func TestBetween(t *testing.T) {
	sp, err := NewSpace(8, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	tests := []struct {
		name string
		x    uint64
		a    uint64
		b    uint64
		want bool
	}{
		{"linear inside", 5, 1, 10, true},
		{"linear equal upper bound", 10, 1, 10, true},
		{"linear equal lower bound excluded", 1, 1, 10, false},
		{"linear outside", 20, 1, 10, false},
		{"wrap inside tail", 250, 200, 10, true},
		{"wrap inside head", 5, 200, 10, true},
		{"wrap outside", 100, 200, 10, false},
		{"whole ring when a==b", 77, 3, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := sp.FromUint64(tt.x)
			a := sp.FromUint64(tt.a)
			b := sp.FromUint64(tt.b)
			if got := x.Between(a, b); got != tt.want {
				t.Errorf("Between(%d,%d,%d) = %v, want %v", tt.x, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFingerStart(t *testing.T) {
	sp, err := NewSpace(8, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	self := sp.FromUint64(10)

	tests := []struct {
		i    int
		want uint64
	}{
		{1, 11},
		{2, 12},
		{3, 14},
		{4, 18},
		{8, 138}, // 10 + 2^7 = 138, within 8-bit space, no wrap needed
	}
	for _, tt := range tests {
		got, err := sp.FingerStart(self, tt.i)
		if err != nil {
			t.Fatalf("FingerStart(%d): %v", tt.i, err)
		}
		want := sp.FromUint64(tt.want)
		if !got.Equal(want) {
			t.Errorf("FingerStart(%d) = %s, want %s", tt.i, got.ToHexString(false), want.ToHexString(false))
		}
	}
}

func TestFromHexStringRoundTrip(t *testing.T) {
	sp, err := NewSpace(160, 160, 5)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	id := sp.NewIdFromString("127.0.0.1:5000")
	hexStr := id.ToHexString(false)

	got, err := sp.FromHexString(hexStr)
	if err != nil {
		t.Fatalf("FromHexString: %v", err)
	}
	if !got.Equal(id) {
		t.Errorf("round trip mismatch: got %s, want %s", got.ToHexString(false), id.ToHexString(false))
	}
}

func TestFromHexStringRejectsOutOfRange(t *testing.T) {
	sp, err := NewSpace(4, 4, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	if _, err := sp.FromHexString("ff"); err == nil {
		t.Errorf("expected error for value exceeding 4-bit space")
	}
}

func TestCmpAndEqual(t *testing.T) {
	sp, err := NewSpace(8, 8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	a := sp.FromUint64(5)
	b := sp.FromUint64(10)

	if a.Cmp(b) >= 0 {
		t.Errorf("expected a < b")
	}
	if !a.Equal(sp.FromUint64(5)) {
		t.Errorf("expected equal IDs to compare equal")
	}
}
