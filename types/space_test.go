package types

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestDiscreteSpaceRoundTrip(t *testing.T) {
	s, err := NewDiscreteSpace(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for v := 0; v < 4; v++ {
		d, err := s.ToDiscrete(v)
		if err != nil {
			t.Fatalf("to discrete: %v", err)
		}
		back, err := s.FromDiscrete(d)
		if err != nil {
			t.Fatalf("from discrete: %v", err)
		}
		if back.(int) != v {
			t.Errorf("round trip changed value: %d -> %v", v, back)
		}
	}
}

func TestDiscreteSpaceBounds(t *testing.T) {
	if _, err := NewDiscreteSpace(0); err == nil {
		t.Errorf("expected error for empty discrete space")
	}
	s, _ := NewDiscreteSpace(3)
	if s.Contains(3) {
		t.Errorf("3 should be outside Discrete(3)")
	}
	if !s.Contains(2) {
		t.Errorf("2 should be inside Discrete(3)")
	}
}

func TestContinuousSpaceQuantization(t *testing.T) {
	s, err := NewContinuousSpace(-1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s = s.Divided(4)
	tolerance := 2.0 / 4

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		v := s.Sample(rng).(float64)
		d, err := s.ToDiscrete(v)
		if err != nil {
			t.Fatalf("to discrete: %v", err)
		}
		back, err := s.FromDiscrete(d)
		if err != nil {
			t.Fatalf("from discrete: %v", err)
		}
		if math.Abs(back.(float64)-v) > tolerance {
			t.Errorf("round trip outside quantization tolerance: %f -> %f", v, back)
		}
	}
}

func TestUnboundedSpaceConversion(t *testing.T) {
	s := NewUnboundedContinuousSpace()
	_, err := s.ToDiscrete(0.5)
	var ub *UnboundedConversionError
	if !errors.As(err, &ub) {
		t.Fatalf("expected UnboundedConversionError, got %v", err)
	}
	if _, err := s.DiscreteSize(); !errors.As(err, &ub) {
		t.Errorf("expected UnboundedConversionError from DiscreteSize, got %v", err)
	}
}

func TestArraySpaceShapeMismatch(t *testing.T) {
	s, err := NewArrayDiscreteSpace([]int{0, 0, 0}, []int{2, 2, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = s.ToDiscrete([]int{1, 1})
	var sm *ShapeMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("expected ShapeMismatchError, got %v", err)
	}
	if sm.Want != 3 || sm.Got != 2 {
		t.Errorf("wrong shapes in error: want %d got %d", sm.Want, sm.Got)
	}
	if _, err := s.FromDiscrete([]int{1}); !errors.As(err, &sm) {
		t.Errorf("expected ShapeMismatchError from FromDiscrete, got %v", err)
	}
}

func TestArrayDiscreteBoundsValidation(t *testing.T) {
	if _, err := NewArrayDiscreteSpace([]int{0, 5}, []int{2, 2}); err == nil {
		t.Errorf("expected error for low > high")
	}
	if _, err := NewContinuousSpace(1, -1); err == nil {
		t.Errorf("expected error for low > high")
	}
}

// Sampling 1000 values from a Box([-1,1]^4) and round-tripping
// discrete -> continuous -> discrete must reproduce the same bin indices.
func TestBoxSpaceStableQuantization(t *testing.T) {
	box, err := NewUniformBoxSpace([]int{4}, -1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	box = box.Divided(4)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		v := box.Sample(rng)
		bins, err := box.ToDiscrete(v)
		if err != nil {
			t.Fatalf("to discrete: %v", err)
		}
		mid, err := box.FromDiscrete(bins)
		if err != nil {
			t.Fatalf("from discrete: %v", err)
		}
		again, err := box.ToDiscrete(mid)
		if err != nil {
			t.Fatalf("re-quantize: %v", err)
		}
		for d := range bins {
			if bins[d] != again[d] {
				t.Fatalf("unstable quantization at dim %d: %v vs %v", d, bins, again)
			}
		}
	}
}

func TestSampleStaysInSpace(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	spaces := []Space{}

	d, _ := NewDiscreteSpace(5)
	ad, _ := NewArrayDiscreteSpace([]int{0, -1}, []int{3, 1})
	c, _ := NewContinuousSpace(0, 10)
	ac, _ := NewArrayContinuousSpace([]float64{-1, -1}, []float64{1, 1})
	b, _ := NewUniformBoxSpace([]int{2, 2}, 0, 1)
	spaces = append(spaces, d, ad, c, ac, b)

	for _, s := range spaces {
		for i := 0; i < 50; i++ {
			v := s.Sample(rng)
			if !s.Contains(v) {
				t.Errorf("space %s sampled value outside itself: %v", s, v)
			}
		}
	}
}
