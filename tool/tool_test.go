package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/wikiagent/core"
	"github.com/hupe1980/wikiagent/retrieval"
	"github.com/hupe1980/wikiagent/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Text  string `json:"text" description:"Text to echo"`
	Times int    `json:"times" default:"1" minimum:"1" maximum:"3"`
}

func newEchoTool() *FunctionTool {
	return NewTypedTool("echo", "Echo text", func(_ context.Context, args echoArgs) (any, error) {
		out := ""
		for i := 0; i < args.Times; i++ {
			out += args.Text
		}
		return out, nil
	})
}

// -------------------- Registry --------------------

func TestRegistry_RegisterAndList(t *testing.T) {
	reg, err := NewRegistry(newEchoTool(), NewCalculatorTool())
	require.NoError(t, err)

	assert.Equal(t, []string{"echo", "calculator"}, reg.Names())
	assert.Equal(t, 2, reg.Len())
	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "echo", list[0].Name())

	err = reg.Register(newEchoTool())
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	err = reg.Register(NewFunctionTool(" ", "blank", nil, nil))
	assert.ErrorContains(t, err, "empty name")

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, core.ErrUnknownTool)
}

func TestRegistry_Resolve(t *testing.T) {
	reg, err := NewRegistry(newEchoTool())
	require.NoError(t, err)

	t.Run("defaults applied", func(t *testing.T) {
		cmd, err := reg.Resolve("echo", `{"text":"hi"}`)
		require.NoError(t, err)
		assert.Equal(t, "echo", cmd.Name())
		assert.Equal(t, `{"text":"hi"}`, cmd.RawInput())
		assert.Equal(t, map[string]any{"text": "hi", "times": 1}, cmd.Args())

		out, err := cmd.Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "hi", out)
	})

	t.Run("json numbers normalized", func(t *testing.T) {
		cmd, err := reg.Resolve("echo", `{"text":"ab","times":2}`)
		require.NoError(t, err)
		out, err := cmd.Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abab", out)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := reg.Resolve("web_browse", `{}`)
		assert.Equal(t, CodeUnknownTool, CodeOf(err))
		assert.ErrorIs(t, err, core.ErrUnknownTool)
		assert.ErrorContains(t, err, "echo")
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := reg.Resolve("echo", `{"text":`)
		assert.Equal(t, CodeValidation, CodeOf(err))
	})

	t.Run("schema violation", func(t *testing.T) {
		for _, raw := range []string{`{}`, `{"text":1}`, `{"text":"x","times":9}`, `{"text":"x","extra":true}`, `[1,2]`} {
			_, err := reg.Resolve("echo", raw)
			assert.Equal(t, CodeValidation, CodeOf(err), raw)
		}
	})

	t.Run("empty arguments", func(t *testing.T) {
		_, err := reg.Resolve("echo", "")
		assert.Equal(t, CodeValidation, CodeOf(err), "text is required")
	})
}

func TestCommand_ZeroValue(t *testing.T) {
	var cmd Command
	_, err := cmd.Execute(context.Background())
	assert.ErrorIs(t, err, core.ErrUnknownTool)
	assert.False(t, cmd.Stateless())
}

func TestCommand_Cancelled(t *testing.T) {
	reg, err := NewRegistry(newEchoTool())
	require.NoError(t, err)
	cmd, err := reg.Resolve("echo", `{"text":"x"}`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cmd.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// -------------------- FunctionTool --------------------

func TestFunctionTool_ErrorClassification(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{errors.New("boom"), CodeExecution},
		{fmt.Errorf("x: %w", core.ErrProviderUnavailable), CodeProviderUnavailable},
		{fmt.Errorf("x: %w: %w", core.ErrProviderUnavailable, core.ErrRateLimited), CodeRateLimited},
		{fmt.Errorf("%w: bad", ErrInvalidArgument), CodeValidation},
		{NewToolError("custom", "keep me", "CUSTOM"), "CUSTOM"},
	}
	for _, tc := range cases {
		ft := NewFunctionTool("fail", "fails", map[string]any{"type": "object"}, func(context.Context, map[string]any) (any, error) {
			return nil, tc.err
		})
		_, err := ft.Call(context.Background(), map[string]any{})
		assert.Equal(t, tc.code, CodeOf(err), tc.err.Error())
	}
}

func TestFunctionTool_ValidatesBeforeCalling(t *testing.T) {
	called := false
	ft := NewTypedTool("typed", "typed", func(context.Context, echoArgs) (any, error) {
		called = true
		return nil, nil
	})
	_, err := ft.Call(context.Background(), map[string]any{"times": 2})

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeValidation, te.Code)
	assert.False(t, called)

	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "text", ve.Field)
}

func TestIsStateless(t *testing.T) {
	assert.False(t, IsStateless(newEchoTool()))
	assert.True(t, IsStateless(newEchoTool().WithStateless()))
}

// -------------------- Calculator --------------------

func TestCalculatorTool(t *testing.T) {
	calc := NewCalculatorTool()
	assert.True(t, calc.Stateless())

	out, err := calc.Call(context.Background(), map[string]any{"expression": "pi * 5**2"})
	require.NoError(t, err)
	res, ok := out.(Calculation)
	require.True(t, ok)
	assert.InDelta(t, 78.5398, res.Value, 1e-4)
	assert.Equal(t, "pi * 5**2 = 78.5398", Render(out))

	_, err = calc.Call(context.Background(), map[string]any{"expression": "__import__('os')"})
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = calc.Call(context.Background(), map[string]any{"expression": "1/0"})
	assert.Equal(t, CodeExecution, CodeOf(err))
}

// -------------------- Weather --------------------

type mockWeather struct{ mock.Mock }

func (m *mockWeather) Current(ctx context.Context, location string) (weather.Snapshot, error) {
	args := m.Called(ctx, location)
	return args.Get(0).(weather.Snapshot), args.Error(1)
}

func (m *mockWeather) Forecast(ctx context.Context, location string, days int) ([]weather.Snapshot, error) {
	args := m.Called(ctx, location, days)
	snaps, _ := args.Get(0).([]weather.Snapshot)
	return snaps, args.Error(1)
}

func TestWeatherTools(t *testing.T) {
	p := &mockWeather{}
	p.On("Current", mock.Anything, "Berlin").Return(weather.Snapshot{Location: "Berlin", Country: "DE", Temperature: 21.5, Description: "clear sky"}, nil)
	p.On("Current", mock.Anything, "Atlantis").Return(weather.Snapshot{}, weather.ErrLocationNotFound)
	p.On("Current", mock.Anything, "Paris").Return(weather.Snapshot{}, fmt.Errorf("weather: %w", core.ErrProviderUnavailable))
	p.On("Forecast", mock.Anything, "Rome", 3).Return([]weather.Snapshot{{Location: "Rome"}, {Location: "Rome"}, {Location: "Rome"}}, nil)

	reg, err := NewRegistry(NewWeatherTools(p)...)
	require.NoError(t, err)
	assert.Equal(t, []string{WeatherCurrentToolName, WeatherForecastToolName}, reg.Names())

	cmd, err := reg.Resolve(WeatherCurrentToolName, `{"location":"Berlin"}`)
	require.NoError(t, err)
	out, err := cmd.Execute(context.Background())
	require.NoError(t, err)
	assert.Contains(t, Render(out), "Berlin")

	cmd, err = reg.Resolve(WeatherCurrentToolName, `{"location":"Atlantis"}`)
	require.NoError(t, err)
	_, err = cmd.Execute(context.Background())
	assert.Equal(t, CodeExecution, CodeOf(err))
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)

	cmd, err = reg.Resolve(WeatherCurrentToolName, `{"location":"Paris"}`)
	require.NoError(t, err)
	_, err = cmd.Execute(context.Background())
	assert.Equal(t, CodeProviderUnavailable, CodeOf(err))
	assert.True(t, core.IsUpstreamFailure(err))

	cmd, err = reg.Resolve(WeatherForecastToolName, `{"location":"Rome"}`)
	require.NoError(t, err)
	out, err = cmd.Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, out.(Forecast).Days, 3)

	_, err = reg.Resolve(WeatherForecastToolName, `{"location":"Rome","days":6}`)
	assert.Equal(t, CodeValidation, CodeOf(err))

	p.AssertExpectations(t)
}

// -------------------- Knowledge --------------------

type stubSearcher struct {
	count   int
	results []retrieval.Result
	gotK    int
}

func (s *stubSearcher) Count(context.Context) (int, error) { return s.count, nil }

func (s *stubSearcher) Query(_ context.Context, _ string, k int) ([]retrieval.Result, error) {
	s.gotK = k
	return s.results, nil
}

func TestKnowledgeTool(t *testing.T) {
	s := &stubSearcher{}
	kt := NewKnowledgeTool(s)
	assert.False(t, kt.Available(context.Background()))

	reg, err := NewRegistry(kt, NewCalculatorTool())
	require.NoError(t, err)
	defs := reg.Definitions(context.Background())
	require.Len(t, defs, 1)
	assert.Equal(t, CalculatorToolName, defs[0].Function.Name)

	s.count = 1
	s.results = []retrieval.Result{{
		ChunkID: "paris#0", SourceDocumentID: "paris", Text: "Paris is the capital of France.", Score: 0.8,
		Metadata: map[string]string{retrieval.MetaTitle: "Paris", retrieval.MetaURL: "https://en.wikipedia.org/wiki/Paris"},
	}}
	assert.Len(t, reg.Definitions(context.Background()), 2)

	cmd, err := reg.Resolve(KnowledgeToolName, `{"query":"capital of France"}`)
	require.NoError(t, err)
	out, err := cmd.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.gotK)
	text := Render(out)
	assert.Contains(t, text, "[1] Paris (https://en.wikipedia.org/wiki/Paris)")
	assert.Contains(t, text, "capital of France")

	assert.Equal(t, "No relevant passages found.", Passages(nil).String())
}

// -------------------- Render --------------------

func TestRender(t *testing.T) {
	assert.Equal(t, "", Render(nil))
	assert.Equal(t, "plain", Render("plain"))
	assert.Equal(t, `{"a":1}`, Render(map[string]int{"a": 1}))
	assert.Contains(t, Render(weather.Snapshot{Location: "Oslo"}), "Oslo")
}
