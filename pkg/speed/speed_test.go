// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speed

import (
	"math"
	"testing"

	"github.com/Thermoquad/speedlink/pkg/errors"
)

// ============================================================
// Smoother Tests
// ============================================================

func TestSmoother_WindowOfFive(t *testing.T) {
	s := NewSmoother(5)
	samples := []float64{10, 20, 30, 40, 50, 60}
	want := []float64{10, 15, 20, 25, 30, 40}

	for i, sample := range samples {
		got := s.Smooth(sample)
		if math.Abs(got-want[i]) > 1e-9 {
			t.Errorf("Smooth(%v) = %v, want %v", sample, got, want[i])
		}
	}

	if s.Len() != 5 {
		t.Errorf("Len() = %d, want 5", s.Len())
	}
	window := s.Window()
	if window[0] != 20 || window[4] != 60 {
		t.Errorf("Window() = %v, want oldest 10 evicted", window)
	}
}

func TestSmoother_Reset(t *testing.T) {
	s := NewSmoother(3)
	s.Smooth(100)
	s.Smooth(50)
	s.Reset()

	if s.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", s.Len())
	}
	if got := s.Smooth(42); got != 42 {
		t.Errorf("first Smooth after Reset = %v, want 42", got)
	}
}

func TestSmoother_DefaultSize(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{"zero falls back", 0, DefaultWindowSize},
		{"negative falls back", -3, DefaultWindowSize},
		{"one", 1, 1},
		{"ten", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewSmoother(tt.size).Size(); got != tt.want {
				t.Errorf("Size() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSmoother_SizeOneIsPassThrough(t *testing.T) {
	s := NewSmoother(1)
	for _, v := range []float64{3, 99, 0, 12.5} {
		if got := s.Smooth(v); got != v {
			t.Errorf("Smooth(%v) = %v, want pass-through", v, got)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		sample  float64
		want    float64
		wantErr bool
	}{
		{"zero", 0, 0, false},
		{"in range", 88.5, 88.5, false},
		{"at max", 200, 200, false},
		{"above max clamps", 260, 200, false},
		{"negative rejected", -1, 0, true},
		{"NaN rejected", math.NaN(), 0, true},
		{"Inf rejected", math.Inf(1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.sample, DefaultSpeedMax)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Sanitize(%v) err = %v, wantErr %v", tt.sample, err, tt.wantErr)
			}
			if err != nil && !errors.IsKind(err, errors.InvalidInput) {
				t.Errorf("error kind = %v, want InvalidInput", err)
			}
			if got != tt.want {
				t.Errorf("Sanitize(%v) = %v, want %v", tt.sample, got, tt.want)
			}
		})
	}
}

func TestUnitConversions(t *testing.T) {
	if got := MpsToKmh(10); math.Abs(got-36) > 1e-9 {
		t.Errorf("MpsToKmh(10) = %v, want 36", got)
	}
	if got := KnotsToKmh(10); math.Abs(got-18.52) > 1e-9 {
		t.Errorf("KnotsToKmh(10) = %v, want 18.52", got)
	}
}

// ============================================================
// Mapper Tests
// ============================================================

func TestMapper_KnownValues(t *testing.T) {
	m := NewMapper()
	tests := []struct {
		speed         float64
		wantIntensity int
		wantFrequency int
	}{
		{0, 0, 10},
		{15, 25, 20},
		{30, 50, 30},
		{55, 85, 55},
		{80, 120, 80},
		{100, 160, 115},
		{120, 200, 150},
		{121, 200, 150},
		{500, 200, 150},
	}

	for _, tt := range tests {
		p := m.Map(tt.speed)
		if p.Intensity != tt.wantIntensity {
			t.Errorf("Intensity(%v) = %d, want %d", tt.speed, p.Intensity, tt.wantIntensity)
		}
		if p.Frequency != tt.wantFrequency {
			t.Errorf("Frequency(%v) = %d, want %d", tt.speed, p.Frequency, tt.wantFrequency)
		}
	}
}

func TestMapper_Bounds(t *testing.T) {
	m := NewMapper()
	for s := 0.0; s <= 300; s += 0.25 {
		i := m.Intensity(s)
		f := m.Frequency(s)
		if i < IntensityMin || i > IntensityMax {
			t.Fatalf("Intensity(%v) = %d out of [0,200]", s, i)
		}
		if f < FrequencyMin || f > FrequencyMax {
			t.Fatalf("Frequency(%v) = %d out of [10,240]", s, f)
		}
	}
}

func TestMapper_Monotonic(t *testing.T) {
	m := NewMapper()
	prevI, prevF := m.Intensity(0), m.Frequency(0)
	for s := 0.1; s <= 200; s += 0.1 {
		i, f := m.Intensity(s), m.Frequency(s)
		if i < prevI {
			t.Fatalf("Intensity decreased at %v: %d < %d", s, i, prevI)
		}
		if f < prevF {
			t.Fatalf("Frequency decreased at %v: %d < %d", s, f, prevF)
		}
		prevI, prevF = i, f
	}
}

func TestMapper_ContinuousAtBreakpoints(t *testing.T) {
	for _, sched := range []Schedule{IntensitySchedule(), FrequencySchedule()} {
		for i := 0; i+1 < len(sched.Segments); i++ {
			lower := sched.Segments[i]
			upper := sched.Segments[i+1]
			at := lower.InMax
			if lower.Interpolate(at) != upper.Interpolate(at) {
				t.Errorf("discontinuity at %v: %d vs %d", at, lower.Interpolate(at), upper.Interpolate(at))
			}
		}
	}
}

func TestSegment_Degenerate(t *testing.T) {
	seg := Segment{InMin: 50, InMax: 50, OutMin: 7, OutMax: 99}
	for _, s := range []float64{0, 50, 100} {
		if got := seg.Interpolate(s); got != 7 {
			t.Errorf("Interpolate(%v) = %d, want OutMin 7", s, got)
		}
	}
}

func TestSchedule_ClampsToGlobalBound(t *testing.T) {
	sched := Schedule{
		Segments: []Segment{{InMin: 0, InMax: 10, OutMin: -50, OutMax: 500}},
		Overflow: 1000,
		Min:      0,
		Max:      200,
	}
	if got := sched.Map(0); got != 0 {
		t.Errorf("Map(0) = %d, want 0", got)
	}
	if got := sched.Map(10); got != 200 {
		t.Errorf("Map(10) = %d, want 200", got)
	}
	if got := sched.Map(11); got != 200 {
		t.Errorf("Map(11) = %d, want 200", got)
	}
}

func TestMapper_NaNMapsLikeZero(t *testing.T) {
	m := NewMapper()
	if got := m.Intensity(math.NaN()); got != 0 {
		t.Errorf("Intensity(NaN) = %d, want 0", got)
	}
	if got := m.Frequency(math.NaN()); got != 10 {
		t.Errorf("Frequency(NaN) = %d, want 10", got)
	}
}
