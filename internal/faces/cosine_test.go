package faces

import (
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{
			name: "identical vectors",
			a:    []float32{1, 2, 3},
			b:    []float32{1, 2, 3},
			want: 0,
		},
		{
			name: "same direction different magnitude",
			a:    []float32{1, 0},
			b:    []float32{5, 0},
			want: 0,
		},
		{
			name: "orthogonal vectors",
			a:    []float32{1, 0},
			b:    []float32{0, 1},
			want: 1,
		},
		{
			name: "zero vector is maximum distance",
			a:    []float32{0, 0},
			b:    []float32{1, 1},
			want: 1,
		},
		{
			name: "mismatched lengths",
			a:    []float32{1, 2},
			b:    []float32{1, 2, 3},
			want: 1,
		},
		{
			name: "empty vectors",
			a:    nil,
			b:    nil,
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineDistanceRange(t *testing.T) {
	// Opposite vectors are clamped into [0, 2].
	got := CosineDistance([]float32{1, 0}, []float32{-1, 0})
	if got < 0 || got > 2 {
		t.Errorf("distance out of range: %v", got)
	}
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("opposite vectors should be distance 2, got %v", got)
	}
}
