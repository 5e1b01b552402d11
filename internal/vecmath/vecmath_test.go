package vecmath

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"scaled", []float64{1, 1}, []float64{5, 5}, 1},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]float64{1, 2, 3}, 3); err != nil {
		t.Errorf("valid vector rejected: %v", err)
	}
	if err := Validate([]float64{1, 2}, 3); err == nil {
		t.Error("short vector accepted")
	}
	if err := Validate([]float64{1, math.NaN(), 3}, 3); err == nil {
		t.Error("NaN component accepted")
	}
	if err := Validate([]float64{1, math.Inf(1), 3}, 3); err == nil {
		t.Error("Inf component accepted")
	}
}

func TestNormalize(t *testing.T) {
	vec := []float64{3, 4}
	Normalize(vec)
	if math.Abs(vec[0]-0.6) > 1e-9 || math.Abs(vec[1]-0.8) > 1e-9 {
		t.Errorf("Normalize = %v, want [0.6 0.8]", vec)
	}

	zero := []float64{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
