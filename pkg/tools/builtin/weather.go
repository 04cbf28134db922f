package builtin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/real-zephex/Rapid-Chat-sub000/pkg/ai"
	"github.com/real-zephex/Rapid-Chat-sub000/pkg/tools"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
)

type weatherTool struct {
	opts Options
}

// NewWeatherTool returns the weather tool backed by Open-Meteo.
func NewWeatherTool(opts Options) tools.Tool {
	if opts.GeocodeURL == "" {
		opts.GeocodeURL = defaultGeocodeURL
	}
	if opts.ForecastURL == "" {
		opts.ForecastURL = defaultForecastURL
	}
	return &weatherTool{opts: opts}
}

func (t *weatherTool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        NameWeather,
		Description: "Get the current weather for a city or place name.",
		Parameters: tools.MustSchema(tools.SimpleSchema{
			Properties: map[string]tools.Property{
				"location": {Type: "string", Description: "City or place name, e.g. \"Paris\""},
			},
			Required: []string{"location"},
		}),
	}
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Time                string  `json:"time"`
		Temperature         float64 `json:"temperature_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		Humidity            float64 `json:"relative_humidity_2m"`
		WindSpeed           float64 `json:"wind_speed_10m"`
		WeatherCode         int     `json:"weather_code"`
	} `json:"current"`
	Units struct {
		Temperature string `json:"temperature_2m"`
		WindSpeed   string `json:"wind_speed_10m"`
	} `json:"current_units"`
}

func (t *weatherTool) Execute(ctx context.Context, params map[string]any) (tools.Result, error) {
	location := strings.TrimSpace(tools.String(params, "location"))
	if location == "" {
		return tools.Result{}, errors.New("location is required")
	}
	client, ua := t.opts.client(), t.opts.userAgent()

	q := url.Values{"name": {location}, "count": {"1"}, "language": {"en"}, "format": {"json"}}
	var geo geocodeResponse
	if err := getJSON(ctx, client, ua, t.opts.GeocodeURL+"?"+q.Encode(), &geo); err != nil {
		return tools.Result{}, fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(geo.Results) == 0 {
		return tools.Result{}, fmt.Errorf("no place found for %q", location)
	}
	place := geo.Results[0]

	q = url.Values{
		"latitude":  {fmt.Sprintf("%.4f", place.Latitude)},
		"longitude": {fmt.Sprintf("%.4f", place.Longitude)},
		"current":   {"temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,weather_code"},
		"timezone":  {"auto"},
	}
	var fc forecastResponse
	if err := getJSON(ctx, client, ua, t.opts.ForecastURL+"?"+q.Encode(), &fc); err != nil {
		return tools.Result{}, fmt.Errorf("forecast: %w", err)
	}

	name := place.Name
	if place.Admin1 != "" && place.Admin1 != place.Name {
		name += ", " + place.Admin1
	}
	if place.Country != "" {
		name += ", " + place.Country
	}
	c := fc.Current
	return tools.OK(fmt.Sprintf(
		"Weather in %s at %s: %s, %.1f%s (feels like %.1f%s), humidity %.0f%%, wind %.1f %s.",
		name, c.Time, describeWeatherCode(c.WeatherCode),
		c.Temperature, fc.Units.Temperature, c.ApparentTemperature, fc.Units.Temperature,
		c.Humidity, c.WindSpeed, fc.Units.WindSpeed)), nil
}

// describeWeatherCode maps WMO weather interpretation codes.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	}
	return fmt.Sprintf("weather code %d", code)
}
