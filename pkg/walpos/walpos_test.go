package walpos

import "testing"

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0/50", "0/50"},
		{"0/FFFFFFFF", "0/FFFFFFFF"},
		{"16B3748/0", "16B3748/0"},
	}

	for _, tt := range tests {
		p, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.in, err)
		}
		if got := p.String(); got != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
		}
		if !p.Valid() {
			t.Errorf("Parse(%q) should be Valid", tt.in)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "whatever", "0", "0/", "/0", "g/0", "0/g"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", in)
		}
	}
}

func TestDiff(t *testing.T) {
	a, _ := Parse("0/FFFFFFFF")
	b, _ := Parse("0/A")
	if got := a.Diff(b); got != 0xFFFFFFFF-0xA {
		t.Errorf("Diff = %d, want %d", got, 0xFFFFFFFF-0xA)
	}
	if got := b.Diff(a); got != a.Diff(b) {
		t.Errorf("Diff should be symmetric: %d != %d", got, a.Diff(b))
	}
}

func TestMaxPrefersValid(t *testing.T) {
	var zero Position
	a, _ := Parse("0/10")
	if got := Max(zero, a); got != a {
		t.Errorf("Max(invalid, a) = %v, want %v", got, a)
	}
	if got := Max(a, zero); got != a {
		t.Errorf("Max(a, invalid) = %v, want %v", got, a)
	}
}

func TestMaxPicksLarger(t *testing.T) {
	small, _ := Parse("0/10")
	big, _ := Parse("0/FFFF")
	if got := Max(small, big); got != big {
		t.Errorf("Max(small, big) = %v, want %v", got, big)
	}
	if got := Max(big, small); got != big {
		t.Errorf("Max(big, small) = %v, want %v", got, big)
	}
}
