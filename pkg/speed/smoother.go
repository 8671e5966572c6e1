// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package speed turns raw vehicle speed samples into device control
// parameters: a bounded moving-average smoother followed by a piecewise-linear
// mapping to intensity and frequency.
package speed

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/Thermoquad/speedlink/pkg/errors"
)

// Default limits
const (
	DefaultWindowSize = 5
	DefaultSpeedMax   = 200.0 // km/h
)

// Smoother is a moving-average filter over the most recent samples.
// It is not safe for concurrent use.
type Smoother struct {
	size   int
	window []float64
}

// NewSmoother creates a smoother averaging over the last size samples.
// A size below 1 falls back to DefaultWindowSize.
func NewSmoother(size int) *Smoother {
	if size < 1 {
		size = DefaultWindowSize
	}
	return &Smoother{
		size:   size,
		window: make([]float64, 0, size),
	}
}

// Smooth appends sample, evicts the oldest entries beyond the window size and
// returns the mean of the window.
func (s *Smoother) Smooth(sample float64) float64 {
	s.window = append(s.window, sample)
	if over := len(s.window) - s.size; over > 0 {
		// shift in place so the backing array stays bounded
		n := copy(s.window, s.window[over:])
		s.window = s.window[:n]
	}
	return stat.Mean(s.window, nil)
}

// Reset clears the window.
func (s *Smoother) Reset() {
	s.window = s.window[:0]
}

// Len returns the number of samples currently in the window.
func (s *Smoother) Len() int {
	return len(s.window)
}

// Size returns the configured window size.
func (s *Smoother) Size() int {
	return s.size
}

// Window returns a copy of the current window, oldest first.
func (s *Smoother) Window() []float64 {
	return append([]float64(nil), s.window...)
}

// Sanitize validates a raw sample and clamps it to [0, max]. Negative and
// non-finite samples are rejected with an InvalidInput error.
func Sanitize(sample, max float64) (float64, error) {
	if math.IsNaN(sample) || math.IsInf(sample, 0) {
		return 0, &errors.Error{
			Kind:          errors.InvalidInput,
			Message:       "speed sample is not finite",
			PropertyName:  "speed",
			PropertyValue: sample,
		}
	}
	if sample < 0 {
		return 0, &errors.Error{
			Kind:          errors.InvalidInput,
			Message:       "negative speed sample",
			PropertyName:  "speed",
			PropertyValue: sample,
		}
	}
	if max > 0 && sample > max {
		return max, nil
	}
	return sample, nil
}

// KnotsToKmh converts nautical miles per hour to km/h.
func KnotsToKmh(knots float64) float64 {
	return knots * 1.852
}

// MpsToKmh converts metres per second to km/h.
func MpsToKmh(mps float64) float64 {
	return mps * 3.6
}
