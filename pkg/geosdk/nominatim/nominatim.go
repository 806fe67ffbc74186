package nominatim

import (
	"context"

	geohttp "github.com/speedhud/gohud/pkg/geosdk/http"
)

// Client reverse-geocodes coordinates against a Nominatim-style endpoint.
type Client struct {
	http *geohttp.Client
}

// NewClient builds a client against the API root, e.g.
// https://nominatim.openstreetmap.org.
func NewClient(baseURL string, opt geohttp.Options) *Client {
	return &Client{http: geohttp.NewClient(baseURL, opt)}
}

// Address is the structured address block of a reverse result.
type Address struct {
	Road         string `json:"road"`
	Pedestrian   string `json:"pedestrian"`
	Suburb       string `json:"suburb"`
	Village      string `json:"village"`
	Town         string `json:"town"`
	City         string `json:"city"`
	Municipality string `json:"municipality"`
}

// RoadInfo is the resolved place of a coordinate.
type RoadInfo struct {
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

// Name picks the display string: the road if one is known, otherwise the
// locality. Empty when the result carries neither.
func (r *RoadInfo) Name() string {
	for _, candidate := range []string{
		r.Address.Road,
		r.Address.Pedestrian,
		r.Address.Suburb,
		r.Address.Village,
		r.Address.Town,
		r.Address.City,
		r.Address.Municipality,
	} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// Reverse resolves the road/locality at a coordinate. Zoom 17 asks for
// street-level results.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*RoadInfo, error) {
	var out RoadInfo
	resp, err := c.http.DoRequest(ctx, "GET", "/reverse", &geohttp.RequestOptions{
		Params: map[string]any{
			"format":         "jsonv2",
			"lat":            lat,
			"lon":            lon,
			"zoom":           17,
			"addressdetails": 1,
		},
	}, &out)
	if err := geohttp.ParseHTTPError(resp, err); err != nil {
		return nil, err
	}
	if out.Name() == "" {
		return nil, nil
	}
	return &out, nil
}
