package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "stock-price-alerts/api/stockalerts"
	"stock-price-alerts/internal/alerts"
	"stock-price-alerts/pkg/models"
)

// SymbolTracker starts quote tracking for a symbol that gains an alert.
type SymbolTracker interface {
	Track(ctx context.Context, symbol string) error
}

type AlertServiceServer struct {
	pb.UnimplementedAlertServiceServer
	registry   *alerts.Registry
	triggerBus *alerts.TriggerBus
	tracker    SymbolTracker
	logger     *zap.Logger
}

func NewAlertServiceServer(registry *alerts.Registry, triggerBus *alerts.TriggerBus, tracker SymbolTracker, logger *zap.Logger) *AlertServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertServiceServer{
		registry:   registry,
		triggerBus: triggerBus,
		tracker:    tracker,
		logger:     logger,
	}
}

func (s *AlertServiceServer) CreateAlert(ctx context.Context, req *pb.CreateAlertRequest) (*pb.AlertResponse, error) {
	rule, err := convertAlertFromProto(req)
	if err != nil {
		return nil, toStatus(err)
	}

	if err := s.registry.Add(rule); err != nil {
		s.logger.Warn("Rejected alert", zap.String("symbol", req.Symbol), zap.Error(err))
		return nil, toStatus(err)
	}

	if s.tracker != nil {
		if err := s.tracker.Track(ctx, rule.Symbol); err != nil {
			s.logger.Warn("Alert created but symbol is not tracked", zap.String("symbol", rule.Symbol), zap.Error(err))
		}
	}

	s.logger.Info("Created alert", zap.Stringer("rule", rule))

	return &pb.AlertResponse{Alert: convertAlertToProto(rule)}, nil
}

func (s *AlertServiceServer) ListAlerts(ctx context.Context, req *pb.ListAlertsRequest) (*pb.ListAlertsResponse, error) {
	var rules []*models.AlertRule
	if req.Symbol != "" {
		rules = s.registry.List(req.Symbol)
	} else {
		rules = s.registry.All()
	}

	out := make([]*pb.Alert, len(rules))
	for i, rule := range rules {
		out[i] = convertAlertToProto(rule)
	}

	return &pb.ListAlertsResponse{Alerts: out}, nil
}

func (s *AlertServiceServer) DeleteAlert(ctx context.Context, req *pb.AlertIDRequest) (*pb.DeleteAlertResponse, error) {
	if req.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "alert ID is required")
	}

	if err := s.registry.Remove(req.Id); err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info("Deleted alert", zap.String("id", req.Id))

	return &pb.DeleteAlertResponse{Success: true}, nil
}

func (s *AlertServiceServer) RearmAlert(ctx context.Context, req *pb.AlertIDRequest) (*pb.AlertResponse, error) {
	return s.setArmed(req, s.registry.Rearm)
}

func (s *AlertServiceServer) DisarmAlert(ctx context.Context, req *pb.AlertIDRequest) (*pb.AlertResponse, error) {
	return s.setArmed(req, s.registry.Disarm)
}

func (s *AlertServiceServer) setArmed(req *pb.AlertIDRequest, apply func(string) error) (*pb.AlertResponse, error) {
	if req.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "alert ID is required")
	}
	if err := apply(req.Id); err != nil {
		return nil, toStatus(err)
	}
	rule, err := s.registry.Get(req.Id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.AlertResponse{Alert: convertAlertToProto(rule)}, nil
}

func (s *AlertServiceServer) SubscribeAlerts(req *pb.SubscribeAlertsRequest, stream pb.AlertService_SubscribeAlertsServer) error {
	subscriberID := generateSubscriberID()

	s.logger.Info("Client subscribing to alert events", zap.String("subscriber", subscriberID))

	subscriber := s.triggerBus.Subscribe(subscriberID, 100)
	defer s.triggerBus.Unsubscribe(subscriberID)

	for {
		select {
		case <-stream.Context().Done():
			s.logger.Info("Client disconnected from alert stream", zap.String("subscriber", subscriberID))
			return stream.Context().Err()
		case event, ok := <-subscriber.Events:
			if !ok {
				return nil
			}

			if err := stream.Send(convertAlertEventToProto(event)); err != nil {
				s.logger.Warn("Error sending alert event", zap.String("subscriber", subscriberID), zap.Error(err))
				return err
			}
		}
	}
}
