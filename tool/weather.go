package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/wikiagent/weather"
)

// Registered names of the weather tools.
const (
	WeatherCurrentToolName  = "weather_current"
	WeatherForecastToolName = "weather_forecast"
)

// WeatherProvider is the subset of the weather client used by the tools.
type WeatherProvider interface {
	Current(ctx context.Context, location string) (weather.Snapshot, error)
	Forecast(ctx context.Context, location string, days int) ([]weather.Snapshot, error)
}

// WeatherCurrentArgs are the weather_current arguments.
type WeatherCurrentArgs struct {
	Location string `json:"location" description:"City name, optionally with country code, e.g. 'Berlin' or 'Paris,FR'."`
}

// WeatherForecastArgs are the weather_forecast arguments.
type WeatherForecastArgs struct {
	Location string `json:"location" description:"City name, optionally with country code."`
	Days     int    `json:"days" description:"Number of days to forecast." minimum:"1" maximum:"5" default:"3"`
}

// Forecast is the weather_forecast result.
type Forecast struct {
	Location string             `json:"location"`
	Days     []weather.Snapshot `json:"days"`
}

func (f Forecast) String() string { return weather.ForecastSummary(f.Days) }

// NewWeatherTools returns the current-conditions and forecast tools backed by p.
func NewWeatherTools(p WeatherProvider) []Tool {
	current := NewTypedTool(WeatherCurrentToolName,
		"Get the current weather for a location: temperature, feels-like, humidity, pressure, conditions and wind.",
		func(ctx context.Context, args WeatherCurrentArgs) (any, error) {
			snap, err := p.Current(ctx, args.Location)
			if err != nil {
				return nil, weatherError(err)
			}
			return snap, nil
		}).WithStateless()

	forecast := NewTypedTool(WeatherForecastToolName,
		"Get a daily weather forecast (1 to 5 days) for a location.",
		func(ctx context.Context, args WeatherForecastArgs) (any, error) {
			days, err := p.Forecast(ctx, args.Location, args.Days)
			if err != nil {
				return nil, weatherError(err)
			}
			return Forecast{Location: args.Location, Days: days}, nil
		}).WithStateless()

	return []Tool{current, forecast}
}

func weatherError(err error) error {
	if errors.Is(err, weather.ErrEmptyLocation) || errors.Is(err, weather.ErrInvalidDays) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}
