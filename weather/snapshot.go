package weather

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is the provider independent view of one weather observation or
// forecast entry. Temperatures are in degrees Celsius and wind in m/s.
type Snapshot struct {
	Location    string    `json:"location"`
	Country     string    `json:"country,omitempty"`
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	TempMin     float64   `json:"temp_min,omitempty"`
	TempMax     float64   `json:"temp_max,omitempty"`
	Humidity    int       `json:"humidity"`
	Pressure    int       `json:"pressure"`
	Description string    `json:"description"`
	WindSpeed   float64   `json:"wind_speed"`
}

// Place returns "City, CC" or just the city when the country is unknown.
func (s Snapshot) Place() string {
	if s.Country == "" {
		return s.Location
	}
	return s.Location + ", " + s.Country
}

// Summary renders a single-line human readable description.
func (s Snapshot) Summary() string {
	return fmt.Sprintf("%s: %.1f°C (feels like %.1f°C), %s, humidity %d%%, pressure %d hPa, wind %.1f m/s",
		s.Place(), s.Temperature, s.FeelsLike, s.Description, s.Humidity, s.Pressure, s.WindSpeed)
}

// ForecastSummary renders one line per day.
func ForecastSummary(days []Snapshot) string {
	if len(days) == 0 {
		return "no forecast data"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d-day forecast for %s:", len(days), days[0].Place())
	for _, d := range days {
		fmt.Fprintf(&b, "\n%s: %s, %.1f°C (min %.1f°C, max %.1f°C), humidity %d%%, wind %.1f m/s",
			d.Time.Format("2006-01-02"), d.Description, d.Temperature, d.TempMin, d.TempMax, d.Humidity, d.WindSpeed)
	}
	return b.String()
}

// wire types of the OpenWeatherMap 2.5 API

type owmMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Humidity  int     `json:"humidity"`
	Pressure  int     `json:"pressure"`
}

type owmCondition struct {
	Description string `json:"description"`
}

type owmWind struct {
	Speed float64 `json:"speed"`
}

type owmCurrent struct {
	Name string `json:"name"`
	Dt   int64  `json:"dt"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main    owmMain        `json:"main"`
	Weather []owmCondition `json:"weather"`
	Wind    owmWind        `json:"wind"`
}

type owmForecastEntry struct {
	Dt      int64          `json:"dt"`
	DtTxt   string         `json:"dt_txt"`
	Main    owmMain        `json:"main"`
	Weather []owmCondition `json:"weather"`
	Wind    owmWind        `json:"wind"`
}

type owmForecast struct {
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
	List []owmForecastEntry `json:"list"`
}

type owmError struct {
	Message string `json:"message"`
}

func description(c []owmCondition) string {
	if len(c) == 0 {
		return "unknown"
	}
	return c[0].Description
}

func (c owmCurrent) snapshot() Snapshot {
	return Snapshot{
		Location:    c.Name,
		Country:     c.Sys.Country,
		Time:        time.Unix(c.Dt, 0).UTC(),
		Temperature: c.Main.Temp,
		FeelsLike:   c.Main.FeelsLike,
		TempMin:     c.Main.TempMin,
		TempMax:     c.Main.TempMax,
		Humidity:    c.Main.Humidity,
		Pressure:    c.Main.Pressure,
		Description: description(c.Weather),
		WindSpeed:   c.Wind.Speed,
	}
}

// daily keeps the first entry of each calendar day, in provider order.
func (f owmForecast) daily(days int) []Snapshot {
	out := make([]Snapshot, 0, days)
	seen := make(map[string]bool, days)

	for _, e := range f.List {
		ts := time.Unix(e.Dt, 0).UTC()
		date := ts.Format("2006-01-02")
		if len(e.DtTxt) >= 10 {
			date = e.DtTxt[:10]
		}
		if seen[date] {
			continue
		}
		seen[date] = true

		out = append(out, Snapshot{
			Location:    f.City.Name,
			Country:     f.City.Country,
			Time:        ts,
			Temperature: e.Main.Temp,
			FeelsLike:   e.Main.FeelsLike,
			TempMin:     e.Main.TempMin,
			TempMax:     e.Main.TempMax,
			Humidity:    e.Main.Humidity,
			Pressure:    e.Main.Pressure,
			Description: description(e.Weather),
			WindSpeed:   e.Wind.Speed,
		})

		if len(out) == days {
			break
		}
	}

	return out
}
