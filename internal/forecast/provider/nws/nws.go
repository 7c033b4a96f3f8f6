// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package nws implements the forecast.Provider interface for the US National Weather
// Service API.
package nws

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/weathervane-app/weathervane/internal/forecast"
	"github.com/weathervane-app/weathervane/internal/http"
	"github.com/weathervane-app/weathervane/internal/logger"
)

const (
	name         = "nws"
	apiEndpoint  = "https://api.weather.gov"
	apiTimeout   = time.Second * 10
	gridCacheTTL = time.Hour * 24
)

// NWS is the National Weather Service forecast provider.
type NWS struct {
	endpoint string
	contact  string
	log      *logger.Logger
	http     *http.Client

	// The points lookup result for a coordinate is stable, so it is cached to save one
	// round trip per fetch
	gridLock sync.Mutex
	grids    map[string]gridEntry
}

type gridEntry struct {
	points pointsResponse
	expiry time.Time
}

type pointsResponse struct {
	Properties struct {
		GridID         string `json:"gridId"`
		Forecast       string `json:"forecast"`
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type period struct {
	Number                     int       `json:"number"`
	Name                       string    `json:"name"`
	StartTime                  time.Time `json:"startTime"`
	EndTime                    time.Time `json:"endTime"`
	IsDaytime                  bool      `json:"isDaytime"`
	Temperature                float64   `json:"temperature"`
	TemperatureUnit            string    `json:"temperatureUnit"`
	ProbabilityOfPrecipitation struct {
		Value *float64 `json:"value"`
	} `json:"probabilityOfPrecipitation"`
	RelativeHumidity struct {
		Value *float64 `json:"value"`
	} `json:"relativeHumidity"`
	WindSpeed     string `json:"windSpeed"`
	WindDirection string `json:"windDirection"`
	Icon          string `json:"icon"`
	ShortForecast string `json:"shortForecast"`
}

type forecastResponse struct {
	Properties struct {
		UpdateTime time.Time `json:"updateTime"`
		Periods    []period  `json:"periods"`
	} `json:"properties"`
}

type alertsResponse struct {
	Features []struct {
		Properties struct {
			ID          string     `json:"id"`
			Event       string     `json:"event"`
			Headline    string     `json:"headline"`
			Description string     `json:"description"`
			Severity    string     `json:"severity"`
			Onset       time.Time  `json:"onset"`
			Ends        *time.Time `json:"ends"`
		} `json:"properties"`
	} `json:"features"`
}

// New returns a new NWS provider. The contact address is sent in request headers as
// required by the NWS API terms of service.
func New(httpClient *http.Client, log *logger.Logger, contact string) (*NWS, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &NWS{
		endpoint: apiEndpoint,
		contact:  contact,
		http:     httpClient,
		log:      log,
		grids:    make(map[string]gridEntry),
	}, nil
}

// Name satisfies the forecast.Provider interface
func (n *NWS) Name() string {
	return name
}

// SetEndpoint overrides the API endpoint. Used in tests.
func (n *NWS) SetEndpoint(endpoint string) {
	n.endpoint = endpoint
}

// Fetch retrieves the daily and hourly forecasts plus active alerts for the given
// coordinate and assembles them into a Snapshot.
func (n *NWS) Fetch(ctx context.Context, coords forecast.Coordinate, units string) (*forecast.Snapshot, error) {
	points, err := n.lookupGrid(ctx, coords)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("units", apiUnits(units))

	daily := new(forecastResponse)
	if err = n.get(ctx, points.Properties.Forecast, daily, query); err != nil {
		return nil, err
	}
	hourly := new(forecastResponse)
	if err = n.get(ctx, points.Properties.ForecastHourly, hourly, query); err != nil {
		return nil, err
	}

	alertQuery := url.Values{}
	alertQuery.Set("point", fmt.Sprintf("%.4f,%.4f", coords.Lat, coords.Lon))
	alerts := new(alertsResponse)
	if err = n.get(ctx, n.endpoint+"/alerts/active", alerts, alertQuery); err != nil {
		return nil, err
	}

	snapshot := &forecast.Snapshot{
		Daily:  pairPeriods(daily.Properties.Periods),
		Hourly: hourlyPoints(hourly.Properties.Periods),
		Alerts: mapAlerts(alerts),
		Meta: forecast.Metadata{
			ProviderID:  forecast.ProviderNWS,
			UpdatedAt:   time.Now().UTC(),
			ProviderRef: points.Properties.GridID,
		},
	}
	return snapshot, nil
}

// lookupGrid resolves the coordinate to its NWS gridpoint URLs, using the grid cache
// when possible.
func (n *NWS) lookupGrid(ctx context.Context, coords forecast.Coordinate) (pointsResponse, error) {
	key := fmt.Sprintf("%.4f,%.4f", coords.Lat, coords.Lon)

	n.gridLock.Lock()
	entry, ok := n.grids[key]
	n.gridLock.Unlock()
	if ok && time.Now().Before(entry.expiry) {
		return entry.points, nil
	}

	points := new(pointsResponse)
	endpoint := fmt.Sprintf("%s/points/%s", n.endpoint, key)
	if err := n.get(ctx, endpoint, points, nil); err != nil {
		return pointsResponse{}, err
	}
	if points.Properties.Forecast == "" || points.Properties.ForecastHourly == "" {
		return pointsResponse{}, fmt.Errorf("%w: points response misses forecast URLs", forecast.ErrDecode)
	}

	n.gridLock.Lock()
	n.grids[key] = gridEntry{points: *points, expiry: time.Now().Add(gridCacheTTL)}
	n.gridLock.Unlock()
	return *points, nil
}

// get wraps the HTTP client and maps transport, decode and status failures onto the
// forecast error taxonomy.
func (n *NWS) get(ctx context.Context, endpoint string, target any, query url.Values) error {
	headers := map[string]string{
		"Accept": "application/geo+json",
		"From":   n.contact,
	}
	code, err := n.http.GetWithTimeout(ctx, endpoint, target, query, headers, apiTimeout)
	switch {
	case err != nil && code == 0:
		return fmt.Errorf("%w: %s", forecast.ErrNetwork, err)
	case err != nil:
		return fmt.Errorf("%w: %s", forecast.ErrDecode, err)
	case code != 200:
		return &forecast.ProviderError{Provider: name, StatusCode: code}
	}
	return nil
}

// pairPeriods groups the half-day periods of the NWS daily forecast into one point per
// day: the day period carries the high, the following night period the low. A lone
// leading night period yields a day with only a low, a lone trailing day period a day
// with only a high.
func pairPeriods(periods []period) []forecast.ForecastPoint {
	var points []forecast.ForecastPoint
	for i := 0; i < len(periods); {
		p := periods[i]
		point := forecast.ForecastPoint{
			Time: p.StartTime,
			Icon: normalizeIcon(p.Icon, p.IsDaytime),
		}
		applyShared(&point, p)

		if p.IsDaytime {
			point.TempHigh.Set(p.Temperature)
			if i+1 < len(periods) && !periods[i+1].IsDaytime {
				night := periods[i+1]
				point.TempLow.Set(night.Temperature)
				mergePrecip(&point, night)
				i += 2
			} else {
				i++
			}
		} else {
			// A leading night period has no paired day part
			point.TempLow.Set(p.Temperature)
			i++
		}
		points = append(points, point)
	}
	return points
}

// hourlyPoints converts the hourly forecast periods into forecast points.
func hourlyPoints(periods []period) []forecast.ForecastPoint {
	points := make([]forecast.ForecastPoint, 0, len(periods))
	for _, p := range periods {
		point := forecast.ForecastPoint{
			Time: p.StartTime,
			Icon: normalizeIcon(p.Icon, p.IsDaytime),
		}
		point.Temperature.Set(p.Temperature)
		applyShared(&point, p)
		points = append(points, point)
	}
	return points
}

// applyShared copies the fields shared between daily and hourly periods.
func applyShared(point *forecast.ForecastPoint, p period) {
	if p.ProbabilityOfPrecipitation.Value != nil {
		point.PrecipChance.Set(*p.ProbabilityOfPrecipitation.Value)
	}
	if p.RelativeHumidity.Value != nil {
		point.Humidity.Set(*p.RelativeHumidity.Value)
	}
	if speed, ok := parseWindSpeed(p.WindSpeed); ok {
		point.WindSpeed.Set(speed)
	}
	if dir, ok := windDirectionDegrees(p.WindDirection); ok {
		point.WindDirection.Set(dir)
	}
}

// mergePrecip folds the night period's precipitation chance into the paired daily
// point, keeping the higher of the two values.
func mergePrecip(point *forecast.ForecastPoint, night period) {
	if night.ProbabilityOfPrecipitation.Value == nil {
		return
	}
	chance := *night.ProbabilityOfPrecipitation.Value
	if !point.PrecipChance.IsSet() || chance > point.PrecipChance.Value() {
		point.PrecipChance.Set(chance)
	}
}

// parseWindSpeed extracts the highest speed from strings like "10 mph" or "10 to 15 mph".
func parseWindSpeed(s string) (float64, bool) {
	var speed float64
	found := false
	for _, field := range strings.Fields(s) {
		val, err := strconv.ParseFloat(field, 64)
		if err != nil {
			continue
		}
		if !found || val > speed {
			speed = val
			found = true
		}
	}
	return speed, found
}

var compassDegrees = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSW": 202.5, "SW": 225, "WSW": 247.5,
	"W": 270, "WNW": 292.5, "NW": 315, "NNW": 337.5,
}

func windDirectionDegrees(s string) (float64, bool) {
	deg, ok := compassDegrees[strings.ToUpper(strings.TrimSpace(s))]
	return deg, ok
}

// iconCodes maps NWS icon names to the provider-independent condition codes.
var iconCodes = map[string]string{
	"skc": "clear", "few": "partly-cloudy", "sct": "partly-cloudy",
	"bkn": "cloudy", "ovc": "cloudy", "wind_skc": "wind", "wind_few": "wind",
	"fog": "fog", "haze": "fog", "dust": "fog", "smoke": "fog",
	"rain": "rain", "rain_showers": "rain", "rain_showers_hi": "rain", "shra": "rain",
	"tsra": "thunderstorm", "tsra_sct": "thunderstorm", "tsra_hi": "thunderstorm",
	"snow": "snow", "sleet": "snow", "fzra": "snow", "rain_snow": "snow", "blizzard": "snow",
}

// normalizeIcon extracts the condition name from a NWS icon URL such as
// https://api.weather.gov/icons/land/day/tsra,40?size=medium and maps it onto the
// normalized icon code.
func normalizeIcon(iconURL string, isDay bool) string {
	trimmed := iconURL
	if idx := strings.IndexByte(trimmed, '?'); idx != -1 {
		trimmed = trimmed[:idx]
	}
	if idx := strings.LastIndexByte(trimmed, '/'); idx != -1 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.IndexByte(trimmed, ','); idx != -1 {
		trimmed = trimmed[:idx]
	}

	code, ok := iconCodes[trimmed]
	if !ok {
		code = "cloudy"
	}
	if code == "clear" || code == "partly-cloudy" {
		if isDay {
			return code + "-day"
		}
		return code + "-night"
	}
	return code
}

// mapAlerts converts the active alert features into forecast alerts.
func mapAlerts(res *alertsResponse) []forecast.Alert {
	alerts := make([]forecast.Alert, 0, len(res.Features))
	seen := make(map[string]struct{}, len(res.Features))
	for _, feature := range res.Features {
		props := feature.Properties
		if props.ID == "" {
			continue
		}
		// The API occasionally repeats a feature, alerts are unique by id
		if _, ok := seen[props.ID]; ok {
			continue
		}
		seen[props.ID] = struct{}{}
		alerts = append(alerts, forecast.Alert{
			ID:          props.ID,
			Headline:    props.Headline,
			Description: props.Description,
			Severity:    forecast.ParseSeverity(props.Severity),
			Event:       props.Event,
			Start:       props.Onset,
			End:         props.Ends,
		})
	}
	return alerts
}

// apiUnits maps the configured unit system onto the NWS units query parameter.
func apiUnits(units string) string {
	if strings.ToLower(units) == "imperial" {
		return "us"
	}
	return "si"
}
