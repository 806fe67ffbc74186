package overpass

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	geohttp "github.com/speedhud/gohud/pkg/geosdk/http"
)

// milesToKm converts statute miles to kilometers for annotated limits.
const milesToKm = 1.609344

// Client queries an Overpass-style map-data endpoint for posted speed
// limits around a coordinate.
type Client struct {
	http    *geohttp.Client
	radiusM int
}

// NewClient builds a client against the interpreter endpoint, e.g.
// https://overpass-api.de/api/interpreter.
func NewClient(baseURL string, radiusM int, opt geohttp.Options) *Client {
	if radiusM <= 0 {
		radiusM = 40
	}
	return &Client{
		http:    geohttp.NewClient(baseURL, opt),
		radiusM: radiusM,
	}
}

// SpeedLimit is a posted limit found near a coordinate. Kmh is canonical;
// display conversion happens at the edge.
type SpeedLimit struct {
	Kmh  float64
	Raw  string // the maxspeed tag as posted, e.g. "50" or "30 mph"
	Road string // name tag of the carrying way, may be empty
}

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Tags map[string]string `json:"tags"`
}

// SpeedLimit runs a small-radius spatial query filtered on the maxspeed
// tag. (nil, nil) means the map has no posted limit here; errors cover
// transport and malformed bodies.
func (c *Client) SpeedLimit(ctx context.Context, lat, lon float64) (*SpeedLimit, error) {
	query := fmt.Sprintf(`[out:json][timeout:8];way(around:%d,%.6f,%.6f)["maxspeed"];out tags;`,
		c.radiusM, lat, lon)

	var out response
	resp, err := c.http.DoRequest(ctx, "POST", "", &geohttp.RequestOptions{
		FormData: map[string]string{"data": query},
	}, &out)
	if err := geohttp.ParseHTTPError(resp, err); err != nil {
		return nil, err
	}

	return pickLimit(out.Elements), nil
}

// pickLimit extracts the first usable maxspeed from the returned ways.
func pickLimit(elements []element) *SpeedLimit {
	for _, el := range elements {
		raw, ok := el.Tags["maxspeed"]
		if !ok {
			continue
		}
		kmh, ok := ParseMaxspeed(raw)
		if !ok {
			continue
		}
		return &SpeedLimit{
			Kmh:  kmh,
			Raw:  raw,
			Road: el.Tags["name"],
		}
	}
	return nil
}

// ParseMaxspeed interprets a maxspeed tag value. Bare numbers are km/h per
// the tagging convention; "mph" annotations are converted. Non-numeric
// values ("none", "walk", "signals") are not usable as a display limit.
func ParseMaxspeed(raw string) (float64, bool) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return 0, false
	}

	unit := ""
	if i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}); i >= 0 {
		unit = strings.TrimSpace(s[i:])
		s = s[:i]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value <= 0 {
		return 0, false
	}

	switch unit {
	case "", "km/h", "kmh", "kph":
		return value, true
	case "mph":
		return value * milesToKm, true
	default:
		return 0, false
	}
}
