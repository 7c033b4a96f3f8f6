// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

package openmeteo

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hectormalot/omgo"

	"github.com/weathervane-app/weathervane/internal/logger"
)

var testStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelError, io.Discard)
}

func TestNew(t *testing.T) {
	t.Run("new provider succeeds", func(t *testing.T) {
		provider, err := New(testLogger())
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		if provider.Name() != "open-meteo" {
			t.Errorf("expected provider name to be 'open-meteo', got %q", provider.Name())
		}
	})
	t.Run("new provider without logger fails", func(t *testing.T) {
		if _, err := New(nil); err == nil {
			t.Error("expected provider creation to fail")
		}
	})
}

func TestDailyPoints(t *testing.T) {
	result := &omgo.Forecast{
		DailyTimes: []time.Time{testStart, testStart.Add(time.Hour * 24)},
		DailyMetrics: map[string][]float64{
			"temperature_2m_max":            {25, 27},
			"temperature_2m_min":            {14, 16},
			"precipitation_probability_max": {20, 60},
			"weather_code":                  {0, 95},
			"wind_speed_10m_max":            {12, 30},
			"wind_direction_10m_dominant":   {180, 270},
		},
	}

	points := dailyPoints(result)
	if len(points) != 2 {
		t.Fatalf("expected 2 daily points, got %d", len(points))
	}
	if points[0].TempHigh.Value() != 25 || points[0].TempLow.Value() != 14 {
		t.Errorf("expected first day high/low of 25/14, got %s/%s",
			points[0].TempHigh, points[0].TempLow)
	}
	if points[0].Icon != "clear-day" {
		t.Errorf("expected first day icon 'clear-day', got %q", points[0].Icon)
	}
	if points[1].Icon != "thunderstorm" {
		t.Errorf("expected second day icon 'thunderstorm', got %q", points[1].Icon)
	}
	if points[1].PrecipChance.Value() != 60 {
		t.Errorf("expected second day precip chance of 60, got %s", points[1].PrecipChance)
	}
}

func TestHourlyPoints(t *testing.T) {
	t.Run("all metric columns populate the point", func(t *testing.T) {
		result := &omgo.Forecast{
			HourlyTimes: []time.Time{testStart},
			HourlyMetrics: map[string][]float64{
				"temperature_2m":            {21.5},
				"precipitation_probability": {35},
				"weather_code":              {2},
				"wind_speed_10m":            {8},
				"is_day":                    {0},
				"wind_direction_10m":        {90},
				"relative_humidity_2m":      {65},
				"pressure_msl":              {1013},
				"cloud_cover":               {40},
			},
		}

		points := hourlyPoints(result)
		if len(points) != 1 {
			t.Fatalf("expected 1 hourly point, got %d", len(points))
		}
		point := points[0]
		if point.Temperature.Value() != 21.5 {
			t.Errorf("expected temperature of 21.5, got %s", point.Temperature)
		}
		if point.Humidity.Value() != 65 || point.Pressure.Value() != 1013 {
			t.Errorf("expected humidity/pressure of 65/1013, got %s/%s",
				point.Humidity, point.Pressure)
		}
		if point.SkyCover.Value() != 40 {
			t.Errorf("expected sky cover of 40, got %s", point.SkyCover)
		}
		if point.Icon != "partly-cloudy-night" {
			t.Errorf("expected icon 'partly-cloudy-night', got %q", point.Icon)
		}
	})
	t.Run("short metric columns leave the fields unset", func(t *testing.T) {
		result := &omgo.Forecast{
			HourlyTimes: []time.Time{testStart, testStart.Add(time.Hour)},
			HourlyMetrics: map[string][]float64{
				"temperature_2m": {21.5},
			},
		}

		points := hourlyPoints(result)
		if len(points) != 2 {
			t.Fatalf("expected 2 hourly points, got %d", len(points))
		}
		if points[1].Temperature.IsSet() {
			t.Error("expected second point temperature to be unset")
		}
		if points[1].Humidity.IsSet() {
			t.Error("expected second point humidity to be unset")
		}
	})
}

func TestProviderRef(t *testing.T) {
	t.Run("the ref carries the coordinate echoed by the API", func(t *testing.T) {
		result := &omgo.Forecast{Latitude: 52.52, Longitude: 13.419998}
		if got := providerRef(result); got != "52.5200,13.4200" {
			t.Errorf("expected provider ref '52.5200,13.4200', got %q", got)
		}
	})
}

func TestWeatherCodeIcon(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		isDay bool
		want  string
	}{
		{"clear sky at day", 0, true, "clear-day"},
		{"clear sky at night", 0, false, "clear-night"},
		{"partly cloudy at day", 2, true, "partly-cloudy-day"},
		{"overcast", 3, true, "cloudy"},
		{"fog", 45, false, "fog"},
		{"drizzle", 53, true, "rain"},
		{"rain", 63, true, "rain"},
		{"freezing rain", 66, true, "rain"},
		{"snowfall", 73, false, "snow"},
		{"rain showers", 81, true, "rain"},
		{"snow showers", 86, false, "snow"},
		{"thunderstorm with hail", 99, true, "thunderstorm"},
		{"unknown code falls back to cloudy", 42, true, "cloudy"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := weatherCodeIcon(tc.code, tc.isDay); got != tc.want {
				t.Errorf("expected icon %q, got %q", tc.want, got)
			}
		})
	}
}
