// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package speed

import "math"

// Output bounds
const (
	IntensityMin = 0
	IntensityMax = 200
	FrequencyMin = 10 // Hz
	FrequencyMax = 240
)

// Speed breakpoints (km/h)
const (
	LowSpeedThreshold    = 30.0
	MediumSpeedThreshold = 80.0
	HighSpeedThreshold   = 120.0
)

// Segment maps the speed range (InMin, InMax] linearly onto [OutMin, OutMax].
type Segment struct {
	InMin  float64
	InMax  float64
	OutMin int
	OutMax int
}

// Interpolate maps speed onto the segment's output range. The ratio is
// clamped to [0, 1] and a degenerate input range yields OutMin.
func (s Segment) Interpolate(speed float64) int {
	if s.InMax == s.InMin {
		return s.OutMin
	}
	ratio := (speed - s.InMin) / (s.InMax - s.InMin)
	ratio = math.Max(0, math.Min(1, ratio))
	return int(math.Round(float64(s.OutMin) + ratio*float64(s.OutMax-s.OutMin)))
}

// Schedule is an ordered list of segments plus the value used above the last
// breakpoint. Results are clamped to [Min, Max].
type Schedule struct {
	Segments []Segment
	Overflow int
	Min      int
	Max      int
}

// Map returns the scheduled output for speed.
func (s Schedule) Map(speed float64) int {
	if math.IsNaN(speed) {
		speed = 0
	}
	out := s.Overflow
	for _, seg := range s.Segments {
		if speed <= seg.InMax {
			out = seg.Interpolate(speed)
			break
		}
	}
	return clamp(out, s.Min, s.Max)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IntensitySchedule is the default speed → intensity schedule.
func IntensitySchedule() Schedule {
	return Schedule{
		Segments: []Segment{
			{InMin: 0, InMax: LowSpeedThreshold, OutMin: 0, OutMax: 50},
			{InMin: LowSpeedThreshold, InMax: MediumSpeedThreshold, OutMin: 50, OutMax: 120},
			{InMin: MediumSpeedThreshold, InMax: HighSpeedThreshold, OutMin: 120, OutMax: 200},
		},
		Overflow: IntensityMax,
		Min:      IntensityMin,
		Max:      IntensityMax,
	}
}

// FrequencySchedule is the default speed → frequency schedule.
func FrequencySchedule() Schedule {
	return Schedule{
		Segments: []Segment{
			{InMin: 0, InMax: LowSpeedThreshold, OutMin: 10, OutMax: 30},
			{InMin: LowSpeedThreshold, InMax: MediumSpeedThreshold, OutMin: 30, OutMax: 80},
			{InMin: MediumSpeedThreshold, InMax: HighSpeedThreshold, OutMin: 80, OutMax: 150},
		},
		Overflow: 150,
		Min:      FrequencyMin,
		Max:      FrequencyMax,
	}
}

// Params are the control parameters derived from one smoothed speed.
type Params struct {
	Intensity int
	Frequency int
}

// Mapper converts a smoothed speed to control parameters. It never smooths:
// callers smooth once per sample and pass the result to both mappings.
type Mapper struct {
	intensity Schedule
	frequency Schedule
}

// NewMapper creates a mapper with the default schedules.
func NewMapper() *Mapper {
	return &Mapper{
		intensity: IntensitySchedule(),
		frequency: FrequencySchedule(),
	}
}

// NewMapperWithSchedules creates a mapper with custom schedules.
func NewMapperWithSchedules(intensity, frequency Schedule) *Mapper {
	return &Mapper{intensity: intensity, frequency: frequency}
}

// Intensity maps a smoothed speed to an intensity in [0, 200].
func (m *Mapper) Intensity(speed float64) int {
	return m.intensity.Map(speed)
}

// Frequency maps a smoothed speed to a frequency in [10, 240].
func (m *Mapper) Frequency(speed float64) int {
	return m.frequency.Map(speed)
}

// Map returns both parameters for one smoothed speed.
func (m *Mapper) Map(speed float64) Params {
	return Params{
		Intensity: m.Intensity(speed),
		Frequency: m.Frequency(speed),
	}
}
