package util

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct{ v, lo, hi, want int }{
		{5, 0, 10, 5},
		{-3, 0, 10, 0},
		{12, 0, 10, 10},
	}
	for _, tc := range tests {
		if got := Clamp(tc.v, tc.lo, tc.hi); got != tc.want {
			t.Errorf("Clamp(%d, %d, %d) = %d, want %d", tc.v, tc.lo, tc.hi, got, tc.want)
		}
	}
	if got := Clamp(int16(300), 0, 255); got != 255 {
		t.Errorf("Clamp(int16) = %d", got)
	}
}

func TestAbsSign(t *testing.T) {
	if Abs(-7) != 7 || Abs(7) != 7 || Abs(-2.5) != 2.5 {
		t.Errorf("Abs misbehaves")
	}
	if Sign(-4) != -1 || Sign(0) != 0 || Sign(9) != 1 {
		t.Errorf("Sign misbehaves")
	}
	if got := Lerp(100, 200, 0.25); got != 125 {
		t.Errorf("Lerp = %d, want 125", got)
	}
}
