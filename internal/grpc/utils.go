package grpc

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	pb "stock-price-alerts/api/stockalerts"
	"stock-price-alerts/internal/alerts"
	"stock-price-alerts/internal/tracker"
	"stock-price-alerts/pkg/models"
)

func generateSubscriberID() string {
	return uuid.NewString()
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, alerts.ErrRuleNotFound), errors.Is(err, tracker.ErrNotTracked):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, alerts.ErrRuleExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, tracker.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func convertQuoteToProto(quote models.Quote) *pb.Quote {
	return &pb.Quote{
		Symbol:    quote.Symbol,
		Price:     quote.Price.String(),
		Timestamp: timestamppb.New(quote.Timestamp),
	}
}

func convertAlertToProto(rule *models.AlertRule) *pb.Alert {
	alert := &pb.Alert{
		Id:             rule.ID,
		Symbol:         rule.Symbol,
		Metric:         rule.Metric.String(),
		Direction:      rule.Direction.String(),
		Threshold:      rule.Threshold.String(),
		Armed:          rule.Armed,
		Paused:         rule.Paused,
		Note:           rule.Note,
		Email:          rule.Email,
		TelegramChatId: rule.TelegramChatID,
		CreatedAt:      timestamppb.New(rule.CreatedAt),
	}
	if rule.LastFired != nil {
		alert.LastFired = timestamppb.New(*rule.LastFired)
	}
	return alert
}

func convertAlertEventToProto(event models.AlertEvent) *pb.AlertEvent {
	return &pb.AlertEvent{
		RuleId:    event.RuleID,
		Symbol:    event.Symbol,
		Metric:    event.Metric.String(),
		Direction: event.Direction.String(),
		Threshold: event.Threshold.String(),
		Price:     event.Price.String(),
		Value:     event.Value.String(),
		Note:      event.Note,
		Timestamp: timestamppb.New(event.Timestamp),
	}
}

func convertAlertFromProto(req *pb.CreateAlertRequest) (*models.AlertRule, error) {
	metric, ok := models.ParseMetric(req.Metric)
	if !ok {
		return nil, &models.ValidationError{Field: "metric", Reason: "must be price or change_percent"}
	}
	direction := models.ParseDirection(req.Direction)
	if direction == models.DirectionUnspecified {
		return nil, &models.ValidationError{Field: "direction", Reason: "must be above or below"}
	}
	threshold, err := decimal.NewFromString(req.Threshold)
	if err != nil {
		return nil, &models.ValidationError{Field: "threshold", Reason: "must be a decimal number"}
	}
	rule := models.NewAlertRule(req.Symbol, direction, threshold, req.Note)
	rule.Metric = metric
	rule.Recipients = models.Recipients{Email: req.Email, TelegramChatID: req.TelegramChatId}
	return rule, nil
}
