package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stock-price-alerts/pkg/models"
)

// Sink delivers fired alerts to the user.
type Sink interface {
	Name() string
	Notify(ctx context.Context, event models.AlertEvent) error
}

func Subject(event models.AlertEvent) string {
	if event.Metric == models.MetricChangePercent {
		return fmt.Sprintf("Stock Alert: %s change %s %s%%", event.Symbol, event.Direction, event.Threshold.String())
	}
	return fmt.Sprintf("Stock Alert: %s %s %s", event.Symbol, event.Direction, event.Threshold.String())
}

// FormatMessage renders the plain-text body shared by email and Telegram.
func FormatMessage(event models.AlertEvent) string {
	var b strings.Builder
	b.WriteString("Stock Alert Triggered!\n\n")
	fmt.Fprintf(&b, "Symbol: %s\n", event.Symbol)
	fmt.Fprintf(&b, "Current Price: $%s\n", event.Price.StringFixed(2))
	if event.Metric == models.MetricChangePercent {
		fmt.Fprintf(&b, "Change: %s%%\n", signed(event.Value))
		fmt.Fprintf(&b, "Alert: change %s %s%%\n", event.Direction, signed(event.Threshold))
	} else {
		fmt.Fprintf(&b, "Alert: %s $%s\n", event.Direction, event.Threshold.StringFixed(2))
	}
	if event.Note != "" {
		fmt.Fprintf(&b, "Note: %s\n", event.Note)
	}
	fmt.Fprintf(&b, "Time: %s", event.Timestamp.Format("2006-01-02 15:04:05"))
	return b.String()
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Notify(ctx context.Context, event models.AlertEvent) error {
	s.logger.Info("ALERT",
		zap.String("rule_id", event.RuleID),
		zap.String("symbol", event.Symbol),
		zap.Stringer("metric", event.Metric),
		zap.Stringer("direction", event.Direction),
		zap.String("threshold", event.Threshold.String()),
		zap.String("price", event.Price.String()),
		zap.String("value", event.Value.String()),
		zap.Time("timestamp", event.Timestamp),
		zap.String("note", event.Note))
	return nil
}
