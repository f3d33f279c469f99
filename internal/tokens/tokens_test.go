package tokens

import "testing"

func TestEstimateText(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"hello", 2},
		{"hi, there!", 5},
		{`{"x":1}`, 7},
		{"日本語", 3},
		{"héllo", 2},
		{"one two three four", 5},
	}
	for _, tt := range tests {
		if got := EstimateText(tt.in); got != tt.want {
			t.Fatalf("EstimateText(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEstimateBytes(t *testing.T) {
	for size, want := range map[int64]int{-1: 0, 0: 0, 1: 1, 1024: 1, 1025: 2} {
		if got := EstimateBytes(size); got != want {
			t.Fatalf("EstimateBytes(%d) = %d, want %d", size, got, want)
		}
	}
}
