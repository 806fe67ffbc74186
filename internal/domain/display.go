package domain

import "time"

// WeatherInfo is the resolved weather block. Temperatures are already in the
// display unit's scale. Nil WeatherInfo means "unknown", never zero values.
type WeatherInfo struct {
	Temperature float64 `json:"temperature"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Code        int     `json:"code"`  // provider weather code
	Label       string  `json:"label"` // short text from the code table
}

// PowerStatus is the last observed battery/charging state.
type PowerStatus struct {
	Present  bool `json:"present"` // a battery was found at all
	Charging bool `json:"charging"`
	Percent  int  `json:"percent"`
}

// DisplayState is one immutable snapshot of everything the HUD shows.
// Readers get whole snapshots; nil pointers mean unavailable, not zero.
type DisplayState struct {
	Speed      int          `json:"speed"` // smoothed, in Unit
	Unit       Unit         `json:"unit"`
	SpeedLimit *int         `json:"speed_limit,omitempty"` // in Unit
	Road       *string      `json:"road,omitempty"`
	Weather    *WeatherInfo `json:"weather,omitempty"`
	Power      PowerStatus  `json:"power"`
	InCar      bool         `json:"in_car"` // tracking gate verdict
	Tracking   bool         `json:"tracking"`
	Lat        float64      `json:"lat"`
	Lon        float64      `json:"lon"`
	FixTime    time.Time    `json:"fix_time"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// OverLimit reports whether the displayed speed exceeds the known limit.
// False when no limit is known.
func (s *DisplayState) OverLimit() bool {
	return s.SpeedLimit != nil && s.Speed > *s.SpeedLimit
}
