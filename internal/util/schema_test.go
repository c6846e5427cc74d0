package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forecastArgs struct {
	Location string `json:"location" description:"City name"`
	Days     int    `json:"days" description:"Number of days" minimum:"1" maximum:"5" default:"3"`
	Units    string `json:"units,omitempty" enum:"metric,imperial"`
}

func TestCreateSchema(t *testing.T) {
	s := CreateSchema(forecastArgs{})

	assert.Equal(t, "object", s["type"])
	assert.Equal(t, false, s["additionalProperties"])
	assert.Equal(t, []string{"location"}, s["required"])

	props := s["properties"].(map[string]any)
	days := props["days"].(map[string]any)
	assert.Equal(t, "integer", days["type"])
	assert.Equal(t, float64(1), days["minimum"])
	assert.Equal(t, float64(5), days["maximum"])
	assert.Equal(t, 3, days["default"])

	units := props["units"].(map[string]any)
	assert.Equal(t, []string{"metric", "imperial"}, units["enum"])
}

func TestValidateParameters(t *testing.T) {
	s := CreateSchema(forecastArgs{})

	tests := []struct {
		name  string
		args  string
		field string
	}{
		{"valid", `{"location":"Paris","days":2}`, ""},
		{"missing required", `{"days":2}`, "location"},
		{"wrong type", `{"location":42}`, "location"},
		{"fractional integer", `{"location":"Paris","days":2.5}`, "days"},
		{"below minimum", `{"location":"Paris","days":0}`, "days"},
		{"above maximum", `{"location":"Paris","days":6}`, "days"},
		{"enum", `{"location":"Paris","units":"kelvin"}`, "units"},
		{"unknown field", `{"location":"Paris","cmd":"rm -rf /"}`, "cmd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var params map[string]any
			require.NoError(t, json.Unmarshal([]byte(tt.args), &params))

			err := ValidateParameters(params, s)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateParameters_DecodedSchema(t *testing.T) {
	var s map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`), &s))

	assert.Error(t, ValidateParameters(map[string]any{}, s))
	assert.NoError(t, ValidateParameters(map[string]any{"q": "x", "extra": 1}, s))
}

func TestApplyDefaults(t *testing.T) {
	s := CreateSchema(forecastArgs{})

	out := ApplyDefaults(map[string]any{"location": "Paris"}, s)
	assert.Equal(t, 3, out["days"])

	out = ApplyDefaults(map[string]any{"location": "Paris", "days": float64(5)}, s)
	assert.Equal(t, 5, out["days"])
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Tools:\n{{bullets .tools}}\nToday is {{.date}}.", map[string]any{
		"tools": []string{"calculator", "weather_current"},
		"date":  "2024-01-02",
	})
	require.NoError(t, err)
	assert.Equal(t, "Tools:\n- calculator\n- weather_current\nToday is 2024-01-02.", out)

	out, err = RenderTemplate("plain <text>", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain <text>", out)
}
