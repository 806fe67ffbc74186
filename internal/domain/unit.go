package domain

import (
	"fmt"
	"math"

	"github.com/speedhud/gohud/pkg/geomath"
)

// Unit is the active display unit. It drives speed conversion, the unit of
// the displayed speed limit and the temperature scale.
type Unit string

const (
	UnitKmh Unit = "kmh"
	UnitMph Unit = "mph"
)

// ParseUnit maps a config/API string to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitKmh, UnitMph:
		return Unit(s), nil
	}
	return "", fmt.Errorf("unknown unit: %q", s)
}

// SpeedFactor is the multiplier from meters/second to the display unit.
func (u Unit) SpeedFactor() float64 {
	if u == UnitMph {
		return geomath.MetersPerSecondToMph
	}
	return geomath.MetersPerSecondToKmh
}

// DisplaySpeed converts a meters/second value to the rounded display integer.
func (u Unit) DisplaySpeed(metersPerSecond float64) int {
	return int(math.Round(metersPerSecond * u.SpeedFactor()))
}

// ConvertFromKmh converts a km/h value (the canonical speed-limit unit) to
// the rounded display integer.
func (u Unit) ConvertFromKmh(kmh float64) int {
	return u.DisplaySpeed(kmh / geomath.MetersPerSecondToKmh)
}

// Temperature converts degrees Celsius to the unit's temperature scale.
// Metric displays use °C, imperial °F.
func (u Unit) Temperature(celsius float64) float64 {
	if u == UnitMph {
		return celsius*9/5 + 32
	}
	return celsius
}

// SpeedLabel is the human label for speeds in this unit.
func (u Unit) SpeedLabel() string {
	if u == UnitMph {
		return "mph"
	}
	return "km/h"
}

// TempLabel is the human label for temperatures in this unit.
func (u Unit) TempLabel() string {
	if u == UnitMph {
		return "°F"
	}
	return "°C"
}
