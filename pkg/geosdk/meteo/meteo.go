package meteo

import (
	"context"

	geohttp "github.com/speedhud/gohud/pkg/geosdk/http"
)

// Client fetches current conditions from an Open-Meteo style forecast API.
type Client struct {
	http *geohttp.Client
}

func NewClient(baseURL string, opt geohttp.Options) *Client {
	return &Client{http: geohttp.NewClient(baseURL, opt)}
}

// Report is the subset of the forecast the HUD shows.
type Report struct {
	TempC float64
	HighC float64
	LowC  float64
	Code  int
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// Current fetches the present temperature, today's high/low and the WMO
// weather code for a coordinate.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Report, error) {
	var out forecastResponse
	resp, err := c.http.DoRequest(ctx, "GET", "/v1/forecast", &geohttp.RequestOptions{
		Params: map[string]any{
			"latitude":      lat,
			"longitude":     lon,
			"current":       "temperature_2m,weather_code",
			"daily":         "temperature_2m_max,temperature_2m_min",
			"timezone":      "auto",
			"forecast_days": 1,
		},
	}, &out)
	if err := geohttp.ParseHTTPError(resp, err); err != nil {
		return nil, err
	}

	report := &Report{
		TempC: out.Current.Temperature,
		Code:  out.Current.WeatherCode,
	}
	if len(out.Daily.TemperatureMax) > 0 {
		report.HighC = out.Daily.TemperatureMax[0]
	}
	if len(out.Daily.TemperatureMin) > 0 {
		report.LowC = out.Daily.TemperatureMin[0]
	}
	return report, nil
}

// CodeLabel maps a WMO weather code to a short display label.
func CodeLabel(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code >= 1 && code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code == 95 || code == 96 || code == 99:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
