package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Direction int

const (
	DirectionUnspecified Direction = iota
	DirectionAbove
	DirectionBelow
)

func (d Direction) String() string {
	switch d {
	case DirectionAbove:
		return "above"
	case DirectionBelow:
		return "below"
	default:
		return "unknown"
	}
}

func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above", ">", ">=":
		return DirectionAbove
	case "below", "<", "<=":
		return DirectionBelow
	default:
		return DirectionUnspecified
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed := ParseDirection(string(text))
	if parsed == DirectionUnspecified {
		return fmt.Errorf("unknown direction %q", string(text))
	}
	*d = parsed
	return nil
}

// Metric is the quote value a rule watches.
type Metric int

const (
	MetricPrice Metric = iota
	MetricChangePercent
)

func (m Metric) String() string {
	switch m {
	case MetricPrice:
		return "price"
	case MetricChangePercent:
		return "change_percent"
	default:
		return "unknown"
	}
}

// ParseMetric maps user input to a Metric. An empty string means price.
func ParseMetric(s string) (Metric, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "price":
		return MetricPrice, true
	case "change", "change_percent", "percent", "%":
		return MetricChangePercent, true
	default:
		return MetricPrice, false
	}
}

func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Metric) UnmarshalText(text []byte) error {
	parsed, ok := ParseMetric(string(text))
	if !ok {
		return fmt.Errorf("unknown metric %q", string(text))
	}
	*m = parsed
	return nil
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alert rule: %s %s", e.Field, e.Reason)
}

// AlertRule fires when the watched metric crosses Threshold in Direction.
//
// A rule that fired stays disarmed until the metric crosses back. Paused
// marks a rule the user disarmed; only an explicit rearm clears it.
type AlertRule struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Metric    Metric          `json:"metric"`
	Direction Direction       `json:"direction"`
	Threshold decimal.Decimal `json:"threshold"`
	Armed     bool            `json:"armed"`
	Paused    bool            `json:"paused"`
	Note      string          `json:"note,omitempty"`
	Recipients
	CreatedAt time.Time  `json:"created_at"`
	LastFired *time.Time `json:"last_fired,omitempty"`
}

// Recipients overrides the notification targets configured for the service.
type Recipients struct {
	Email          string `json:"email,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

func NewAlertRule(symbol string, direction Direction, threshold decimal.Decimal, note string) *AlertRule {
	return &AlertRule{
		ID:        uuid.New().String(),
		Symbol:    NormalizeSymbol(symbol),
		Direction: direction,
		Threshold: threshold,
		Armed:     true,
		Note:      note,
		CreatedAt: time.Now(),
	}
}

func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if NormalizeSymbol(r.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "is required"}
	}
	if r.Direction != DirectionAbove && r.Direction != DirectionBelow {
		return &ValidationError{Field: "direction", Reason: "must be above or below"}
	}
	switch r.Metric {
	case MetricPrice:
		if !r.Threshold.IsPositive() {
			return &ValidationError{Field: "threshold", Reason: "must be positive"}
		}
	case MetricChangePercent:
		if r.Threshold.LessThanOrEqual(minChangePercent) {
			return &ValidationError{Field: "threshold", Reason: "must be above -100%"}
		}
	default:
		return &ValidationError{Field: "metric", Reason: "must be price or change_percent"}
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		return &ValidationError{Field: "email", Reason: "is not an address"}
	}
	return nil
}

var minChangePercent = decimal.NewFromInt(-100)

// Value extracts the watched metric from a quote. It reports false when the
// quote does not carry that metric.
func (r *AlertRule) Value(quote Quote) (decimal.Decimal, bool) {
	if r.Metric == MetricChangePercent {
		return quote.ChangePercent()
	}
	return quote.Price, true
}

// Crossed reports whether a move from prev to cur crosses the threshold in the
// rule's direction. Touching the threshold counts as a crossing.
func (r *AlertRule) Crossed(prev, cur decimal.Decimal) bool {
	switch r.Direction {
	case DirectionAbove:
		return prev.LessThan(r.Threshold) && cur.GreaterThanOrEqual(r.Threshold)
	case DirectionBelow:
		return prev.GreaterThan(r.Threshold) && cur.LessThanOrEqual(r.Threshold)
	default:
		return false
	}
}

// CrossedBack reports whether a move from prev to cur leaves the fired side
// of the threshold, which is what rearms a fired rule.
func (r *AlertRule) CrossedBack(prev, cur decimal.Decimal) bool {
	switch r.Direction {
	case DirectionAbove:
		return prev.GreaterThanOrEqual(r.Threshold) && cur.LessThan(r.Threshold)
	case DirectionBelow:
		return prev.LessThanOrEqual(r.Threshold) && cur.GreaterThan(r.Threshold)
	default:
		return false
	}
}

func (r *AlertRule) String() string {
	if r.Metric == MetricChangePercent {
		return fmt.Sprintf("%s change %s %s%%", r.Symbol, r.Direction, r.Threshold.String())
	}
	return fmt.Sprintf("%s %s %s", r.Symbol, r.Direction, r.Threshold.String())
}
