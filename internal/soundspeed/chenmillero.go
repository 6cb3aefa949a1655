// Package soundspeed computes sea-water sound speed from the column output
// of the filter, using the Chen-Millero equation with the Millero-Li
// correction.
package soundspeed

import (
	"errors"
	"math"
	"strings"
)

// Input range limits of the equation.
const (
	MaxPressure    = 1000.0 // bars
	MaxTemperature = 40.0   // deg C
	MaxSalinity    = 40.0   // ppt
)

// Bits of RangeError.Status.
const (
	PressureOutOfRange    = 1
	TemperatureOutOfRange = 2
	SalinityOutOfRange    = 4
)

var ErrOutOfRange = errors.New("sound speed input out of range")

// RangeError reports which inputs fell outside the valid domain. Status is
// the sum of the *OutOfRange bits.
type RangeError struct {
	Status int
}

func (e *RangeError) Error() string {
	var parts []string
	if e.Status&PressureOutOfRange != 0 {
		parts = append(parts, "pressure")
	}
	if e.Status&TemperatureOutOfRange != 0 {
		parts = append(parts, "temperature")
	}
	if e.Status&SalinityOutOfRange != 0 {
		parts = append(parts, "salinity")
	}
	return ErrOutOfRange.Error() + ": " + strings.Join(parts, ", ")
}

func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

func outside(v, lo, hi float64) bool {
	return math.IsNaN(v) || v < lo || v > hi
}

// ChenMilleroLi returns the sound speed in m/s for pressure p in bars,
// temperature t in deg C and salinity s in ppt.
func ChenMilleroLi(p, t, s float64) (float64, error) {
	status := 0
	if outside(p, 0, MaxPressure) {
		status += PressureOutOfRange
	}
	if outside(t, 0, MaxTemperature) {
		status += TemperatureOutOfRange
	}
	if outside(s, 0, MaxSalinity) {
		status += SalinityOutOfRange
	}
	if status != 0 {
		return math.NaN(), &RangeError{Status: status}
	}

	sr := math.Sqrt(math.Abs(s))

	// S^2 term
	d := 1.727e-3 - 7.9836e-6*p

	// S^3/2 term
	b1 := 7.3637e-5 + 1.7945e-7*t
	b0 := -1.922e-2 - 4.42e-5*t
	b := b0 + b1*p

	// S^1 term
	a3 := (-3.389e-13*t+6.649e-12)*t + 1.100e-10
	a2 := ((7.988e-12*t-1.6002e-10)*t+9.1041e-9)*t - 3.9064e-7
	a1 := (((-2.0122e-10*t+1.0507e-8)*t-6.4885e-8)*t-1.2580e-5)*t + 9.4742e-5
	a0 := (((-3.21e-8*t+2.006e-6)*t+7.164e-5)*t-1.262e-2)*t + 1.389
	a := ((a3*p+a2)*p+a1)*p + a0

	// S^0 term
	c3 := (-2.3643e-12*t+3.8504e-10)*t - 9.7729e-9
	c2 := (((1.0405e-12*t-2.5335e-10)*t+2.5974e-8)*t-1.7107e-6)*t + 3.1260e-5
	c1 := (((-6.1185e-10*t+1.3621e-7)*t-8.1788e-6)*t+6.8982e-4)*t + 0.153563
	c0 := ((((3.1464e-9*t-1.47800e-6)*t+3.3420e-4)*t-5.80852e-2)*t+5.03711)*t + 1402.388

	// S^0 correction
	cc1 := (1.4e-5*t-2.19e-4)*t + 0.0029
	cc2 := (-2.59e-8*t+3.47e-7)*t - 4.76e-6
	cc3 := 2.68e-9
	cc := ((cc3*p+cc2)*p + cc1) * p
	c := ((c3*p+c2)*p+c1)*p + c0 - cc

	return c + (a+b*sr+d*s)*s, nil
}

// DepthToPressure converts depth in metres to an approximate pressure in
// bars.
func DepthToPressure(depth float64) float64 {
	return 0.1 * depth / 0.99
}
