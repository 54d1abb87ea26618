package format

import "testing"

func TestPercent(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{"fraction", 0.42, "42.00%"},
		{"already scaled", 42.0, "42.00%"},
		{"zero", 0, "0.00%"},
		{"full fraction", 1.0, "100.00%"},
		{"above one hundred", 250.0, "250.00%"},
		{"small fraction", 0.005, "0.50%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percent(tt.in); got != tt.want {
				t.Errorf("Percent(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
