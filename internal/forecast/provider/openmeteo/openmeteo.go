// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package openmeteo implements the forecast.Provider interface for the Open-Meteo API,
// which covers every coordinate worldwide.
package openmeteo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hectormalot/omgo"

	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/logger"
)

const name = "open-meteo"

var hourlyMetrics = []string{
	"temperature_2m", "precipitation_probability", "weather_code", "wind_speed_10m",
	"is_day", "wind_direction_10m", "relative_humidity_2m", "pressure_msl", "cloud_cover",
}

var dailyMetrics = []string{
	"temperature_2m_max", "temperature_2m_min", "precipitation_probability_max",
	"weather_code", "wind_speed_10m_max", "wind_direction_10m_dominant",
}

type OpenMeteo struct {
	client omgo.Client
	log    *logger.Logger
}

// New returns a new Open-Meteo provider.
func New(log *logger.Logger) (*OpenMeteo, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	client, err := omgo.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Open-Meteo client: %w", err)
	}
	return &OpenMeteo{client: client, log: log}, nil
}

// Name satisfies the forecast.Provider interface
func (o *OpenMeteo) Name() string {
	return name
}

// SetEndpoint overrides the API endpoint. Used in tests.
func (o *OpenMeteo) SetEndpoint(endpoint string) {
	o.client.URL = endpoint
}

// Fetch retrieves the daily and hourly forecasts for the given coordinate. Open-Meteo
// does not serve weather alerts, so the snapshot never carries any.
func (o *OpenMeteo) Fetch(ctx context.Context, coords forecast.Coordinate, units string) (*forecast.Snapshot, error) {
	location, err := omgo.NewLocation(coords.Lat, coords.Lon)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", forecast.ErrInvalidInput, err)
	}

	opts := &omgo.Options{
		Timezone:      "auto",
		HourlyMetrics: hourlyMetrics,
		DailyMetrics:  dailyMetrics,
	}
	switch strings.ToLower(units) {
	case "imperial":
		opts.TemperatureUnit = "fahrenheit"
		opts.WindspeedUnit = "mph"
		opts.PrecipitationUnit = "inch"
	default:
		opts.TemperatureUnit = "celsius"
		opts.WindspeedUnit = "kmh"
		opts.PrecipitationUnit = "mm"
	}

	result, err := o.client.Forecast(ctx, location, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", forecast.ErrNetwork, err)
	}

	snapshot := &forecast.Snapshot{
		Daily:  dailyPoints(result),
		Hourly: hourlyPoints(result),
		Alerts: []forecast.Alert{},
		Meta: forecast.Metadata{
			ProviderID:  forecast.ProviderOpenMeteo,
			UpdatedAt:   time.Now().UTC(),
			ProviderRef: providerRef(result),
		},
	}
	return snapshot, nil
}

// providerRef identifies the grid cell the API resolved the request to. Open-Meteo echoes
// the snapped coordinate in its response, which is the only stable handle it offers.
func providerRef(result *omgo.Forecast) string {
	return fmt.Sprintf("%.4f,%.4f", result.Latitude, result.Longitude)
}

// dailyPoints converts the daily metric columns into one forecast point per day.
func dailyPoints(result *omgo.Forecast) []forecast.ForecastPoint {
	points := make([]forecast.ForecastPoint, 0, len(result.DailyTimes))
	for i, t := range result.DailyTimes {
		point := forecast.ForecastPoint{Time: t}
		if val, ok := metricAt(result.DailyMetrics, "temperature_2m_max", i); ok {
			point.TempHigh.Set(val)
		}
		if val, ok := metricAt(result.DailyMetrics, "temperature_2m_min", i); ok {
			point.TempLow.Set(val)
		}
		if val, ok := metricAt(result.DailyMetrics, "precipitation_probability_max", i); ok {
			point.PrecipChance.Set(val)
		}
		if val, ok := metricAt(result.DailyMetrics, "wind_speed_10m_max", i); ok {
			point.WindSpeed.Set(val)
		}
		if val, ok := metricAt(result.DailyMetrics, "wind_direction_10m_dominant", i); ok {
			point.WindDirection.Set(val)
		}
		if code, ok := metricAt(result.DailyMetrics, "weather_code", i); ok {
			point.Icon = weatherCodeIcon(int(code), true)
		}
		points = append(points, point)
	}
	return points
}

// hourlyPoints converts the hourly metric columns into forecast points.
func hourlyPoints(result *omgo.Forecast) []forecast.ForecastPoint {
	points := make([]forecast.ForecastPoint, 0, len(result.HourlyTimes))
	for i, t := range result.HourlyTimes {
		point := forecast.ForecastPoint{Time: t}
		if val, ok := metricAt(result.HourlyMetrics, "temperature_2m", i); ok {
			point.Temperature.Set(val)
		}
		if val, ok := metricAt(result.HourlyMetrics, "precipitation_probability", i); ok {
			point.PrecipChance.Set(val)
		}
		if val, ok := metricAt(result.HourlyMetrics, "wind_speed_10m", i); ok {
			point.WindSpeed.Set(val)
		}
		if val, ok := metricAt(result.HourlyMetrics, "wind_direction_10m", i); ok {
			point.WindDirection.Set(val)
		}
		if val, ok := metricAt(result.HourlyMetrics, "relative_humidity_2m", i); ok {
			point.Humidity.Set(val)
		}
		if val, ok := metricAt(result.HourlyMetrics, "pressure_msl", i); ok {
			point.Pressure.Set(val)
		}
		if val, ok := metricAt(result.HourlyMetrics, "cloud_cover", i); ok {
			point.SkyCover.Set(val)
		}
		isDay := true
		if val, ok := metricAt(result.HourlyMetrics, "is_day", i); ok {
			isDay = val != 0
		}
		if code, ok := metricAt(result.HourlyMetrics, "weather_code", i); ok {
			point.Icon = weatherCodeIcon(int(code), isDay)
		}
		points = append(points, point)
	}
	return points
}

// metricAt safely indexes a metric column, the API occasionally returns columns shorter
// than the time axis.
func metricAt(metrics map[string][]float64, key string, idx int) (float64, bool) {
	column, ok := metrics[key]
	if !ok || idx >= len(column) {
		return 0, false
	}
	return column[idx], true
}

// weatherCodeIcon maps a WMO weather interpretation code onto the normalized icon code.
func weatherCodeIcon(code int, isDay bool) string {
	var icon string
	switch {
	case code == 0:
		icon = "clear"
	case code == 1 || code == 2:
		icon = "partly-cloudy"
	case code == 3:
		icon = "cloudy"
	case code == 45 || code == 48:
		icon = "fog"
	case code >= 51 && code <= 67:
		icon = "rain"
	case code >= 71 && code <= 77:
		icon = "snow"
	case code >= 80 && code <= 82:
		icon = "rain"
	case code == 85 || code == 86:
		icon = "snow"
	case code >= 95:
		icon = "thunderstorm"
	default:
		icon = "cloudy"
	}
	if icon == "clear" || icon == "partly-cloudy" {
		if isDay {
			return icon + "-day"
		}
		return icon + "-night"
	}
	return icon
}
