package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func TestAlertRule_Crossed(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		prev      float64
		cur       float64
		expected  bool
	}{
		{"above crosses upward", DirectionAbove, 99, 101, true},
		{"above touches threshold", DirectionAbove, 99, 100, true},
		{"above already above", DirectionAbove, 101, 102, false},
		{"above starts on threshold", DirectionAbove, 100, 105, false},
		{"above moves downward", DirectionAbove, 101, 99, false},
		{"below crosses downward", DirectionBelow, 101, 99, true},
		{"below touches threshold", DirectionBelow, 101, 100, true},
		{"below already below", DirectionBelow, 99, 98, false},
		{"below moves upward", DirectionBelow, 99, 101, false},
		{"unspecified never crosses", DirectionUnspecified, 99, 101, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &AlertRule{Direction: tt.direction, Threshold: d(100)}
			assert.Equal(t, tt.expected, rule.Crossed(d(tt.prev), d(tt.cur)))
		})
	}
}

func TestAlertRule_CrossedBack(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		prev      float64
		cur       float64
		expected  bool
	}{
		{"above falls back", DirectionAbove, 101, 99.99, true},
		{"above leaves threshold", DirectionAbove, 100, 99, true},
		{"above falls to threshold", DirectionAbove, 101, 100, false},
		{"above stays below", DirectionAbove, 95, 96, false},
		{"below rises back", DirectionBelow, 99, 100.01, true},
		{"below stays above", DirectionBelow, 105, 106, false},
		{"below rises to threshold", DirectionBelow, 99, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &AlertRule{Direction: tt.direction, Threshold: d(100)}
			assert.Equal(t, tt.expected, rule.CrossedBack(d(tt.prev), d(tt.cur)))
		})
	}
}

func TestAlertRule_Value(t *testing.T) {
	quote := Quote{Symbol: "ABC", Price: d(105), PrevClose: d(100)}

	price := &AlertRule{Metric: MetricPrice}
	v, ok := price.Value(quote)
	require.True(t, ok)
	assert.True(t, v.Equal(d(105)))

	change := &AlertRule{Metric: MetricChangePercent}
	v, ok = change.Value(quote)
	require.True(t, ok)
	assert.True(t, v.Equal(d(5)), v.String())

	_, ok = change.Value(Quote{Symbol: "ABC", Price: d(105)})
	assert.False(t, ok, "no previous close, no change percent")
}

func TestAlertRule_Validate(t *testing.T) {
	tests := []struct {
		name  string
		rule  *AlertRule
		field string
	}{
		{"valid", NewAlertRule("abc", DirectionAbove, d(100), ""), ""},
		{"missing symbol", NewAlertRule("  ", DirectionAbove, d(100), ""), "symbol"},
		{"missing direction", NewAlertRule("ABC", DirectionUnspecified, d(100), ""), "direction"},
		{"zero threshold", NewAlertRule("ABC", DirectionBelow, d(0), ""), "threshold"},
		{"negative threshold", NewAlertRule("ABC", DirectionBelow, d(-5), ""), "threshold"},
		{"missing id", &AlertRule{Symbol: "ABC", Direction: DirectionAbove, Threshold: d(1)}, "id"},
		{"negative change", changeRule(DirectionBelow, d(-5)), ""},
		{"zero change", changeRule(DirectionAbove, d(0)), ""},
		{"change below -100%", changeRule(DirectionBelow, d(-100)), "threshold"},
		{"unknown metric", &AlertRule{ID: "x", Symbol: "ABC", Metric: Metric(9), Direction: DirectionAbove, Threshold: d(1)}, "metric"},
		{"bad email", &AlertRule{ID: "x", Symbol: "ABC", Direction: DirectionAbove, Threshold: d(1), Recipients: Recipients{Email: "nobody"}}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func changeRule(direction Direction, threshold decimal.Decimal) *AlertRule {
	rule := NewAlertRule("ABC", direction, threshold, "")
	rule.Metric = MetricChangePercent
	return rule
}

func TestNewAlertRule(t *testing.T) {
	rule := NewAlertRule(" aapl", DirectionAbove, d(150), "Test alert")

	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "AAPL", rule.Symbol)
	assert.Equal(t, DirectionAbove, rule.Direction)
	assert.True(t, rule.Threshold.Equal(d(150)))
	assert.Equal(t, "Test alert", rule.Note)
	assert.Equal(t, MetricPrice, rule.Metric)
	assert.True(t, rule.Armed, "rules start armed")
	assert.False(t, rule.Paused)
	assert.Nil(t, rule.LastFired)
}

func TestDirection_Text(t *testing.T) {
	tests := []struct {
		direction Direction
		expected  string
	}{
		{DirectionAbove, "above"},
		{DirectionBelow, "below"},
		{DirectionUnspecified, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.direction.String())
		})
	}

	var parsed struct {
		Direction Direction `json:"direction"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"direction":"below"}`), &parsed))
	assert.Equal(t, DirectionBelow, parsed.Direction)
	assert.Error(t, json.Unmarshal([]byte(`{"direction":"sideways"}`), &parsed))
}

func TestNewAlertEvent(t *testing.T) {
	rule := NewAlertRule("ABC", DirectionAbove, d(100), "breakout")
	quote := NewQuote("abc", d(101))

	event := NewAlertEvent(rule, quote)

	assert.Equal(t, rule.ID, event.RuleID)
	assert.Equal(t, "ABC", event.Symbol)
	assert.True(t, event.Price.Equal(d(101)))
	assert.Equal(t, quote.Timestamp, event.Timestamp)
	assert.Equal(t, "breakout", event.Note)
	assert.True(t, event.Value.Equal(d(101)))
}

func TestNewAlertEvent_ChangeRuleCarriesRecipients(t *testing.T) {
	rule := changeRule(DirectionAbove, d(3))
	rule.Recipients = Recipients{Email: "ops@example.com", TelegramChatID: "42"}
	quote := Quote{Symbol: "ABC", Price: d(104), PrevClose: d(100)}

	event := NewAlertEvent(rule, quote)

	assert.Equal(t, MetricChangePercent, event.Metric)
	assert.True(t, event.Value.Equal(d(4)), event.Value.String())
	assert.Equal(t, "ops@example.com", event.Email)
	assert.Equal(t, "42", event.TelegramChatID)
}

func TestParseMetric(t *testing.T) {
	for input, expected := range map[string]Metric{
		"":               MetricPrice,
		"price":          MetricPrice,
		"change":         MetricChangePercent,
		"Change_Percent": MetricChangePercent,
	} {
		got, ok := ParseMetric(input)
		assert.True(t, ok, input)
		assert.Equal(t, expected, got, input)
	}

	_, ok := ParseMetric("volume")
	assert.False(t, ok)
}
