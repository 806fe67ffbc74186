package domain

import "time"

// Fix is one reported device location sample. JSON tags define the wire
// format shared by the MQTT feed, replay logs and the control-plane API.
type Fix struct {
	Lat      float64   `json:"lat"`        // degrees
	Lon      float64   `json:"lon"`        // degrees
	Speed    float64   `json:"speed_ms"`   // meters/second as reported; cheap receivers emit negatives
	Accuracy float64   `json:"accuracy_m"` // horizontal accuracy, 0 = unknown
	Time     time.Time `json:"time"`
}

// ClampedSpeed returns the reported speed with negative readings forced to 0.
func (f Fix) ClampedSpeed() float64 {
	if f.Speed < 0 {
		return 0
	}
	return f.Speed
}

// IsValid reports whether the fix carries usable coordinates and a timestamp.
func (f Fix) IsValid() bool {
	return f.Lat >= -90 && f.Lat <= 90 &&
		f.Lon >= -180 && f.Lon <= 180 &&
		!f.Time.IsZero()
}
