package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertEvent is emitted once per qualifying crossing of an alert rule.
type AlertEvent struct {
	RuleID    string          `json:"rule_id"`
	Symbol    string          `json:"symbol"`
	Metric    Metric          `json:"metric"`
	Direction Direction       `json:"direction"`
	Threshold decimal.Decimal `json:"threshold"`
	Price     decimal.Decimal `json:"price"`
	// Value is the metric that crossed: the price, or the change percent.
	Value     decimal.Decimal `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
	Note      string          `json:"note,omitempty"`
	Recipients
}

func NewAlertEvent(rule *AlertRule, quote Quote) AlertEvent {
	value, ok := rule.Value(quote)
	if !ok {
		value = quote.Price
	}
	return AlertEvent{
		RuleID:     rule.ID,
		Symbol:     quote.Symbol,
		Metric:     rule.Metric,
		Direction:  rule.Direction,
		Threshold:  rule.Threshold,
		Price:      quote.Price,
		Value:      value,
		Timestamp:  quote.Timestamp,
		Note:       rule.Note,
		Recipients: rule.Recipients,
	}
}
