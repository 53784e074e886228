package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "stock-price-alerts/api/stockalerts"
	"stock-price-alerts/internal/pubsub"
	"stock-price-alerts/internal/tracker"
)

type MarketDataServer struct {
	pb.UnimplementedMarketDataServer
	broker  *pubsub.Broker
	tracker *tracker.Tracker
	logger  *zap.Logger
}

func NewMarketDataServer(broker *pubsub.Broker, tracker *tracker.Tracker, logger *zap.Logger) *MarketDataServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataServer{
		broker:  broker,
		tracker: tracker,
		logger:  logger,
	}
}

func (s *MarketDataServer) SubscribeQuotes(req *pb.SubscribeQuotesRequest, stream pb.MarketData_SubscribeQuotesServer) error {
	if len(req.Symbols) == 0 {
		return status.Error(codes.InvalidArgument, "at least one symbol is required")
	}

	subscriberID := generateSubscriberID()

	s.logger.Info("Client subscribing to quotes",
		zap.Strings("symbols", req.Symbols),
		zap.String("subscriber", subscriberID))

	subscriber := s.broker.Subscribe(subscriberID, req.Symbols, 100)
	defer s.broker.Unsubscribe(subscriberID)

	for {
		select {
		case <-stream.Context().Done():
			s.logger.Info("Client disconnected from quote stream", zap.String("subscriber", subscriberID))
			return stream.Context().Err()
		case quote, ok := <-subscriber.QuoteChan:
			if !ok {
				return nil
			}

			if err := stream.Send(convertQuoteToProto(quote)); err != nil {
				s.logger.Warn("Error sending quote", zap.String("subscriber", subscriberID), zap.Error(err))
				return err
			}
		}
	}
}

func (s *MarketDataServer) GetWatchlist(ctx context.Context, req *pb.GetWatchlistRequest) (*pb.WatchlistResponse, error) {
	return s.watchlist(), nil
}

func (s *MarketDataServer) AddToWatchlist(ctx context.Context, req *pb.WatchlistRequest) (*pb.WatchlistResponse, error) {
	if err := s.tracker.Track(ctx, req.Symbol); err != nil {
		return nil, toStatus(err)
	}
	return s.watchlist(), nil
}

func (s *MarketDataServer) RemoveFromWatchlist(ctx context.Context, req *pb.WatchlistRequest) (*pb.WatchlistResponse, error) {
	if req.Symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}
	if err := s.tracker.Untrack(ctx, req.Symbol); err != nil {
		return nil, toStatus(err)
	}
	return s.watchlist(), nil
}

// watchlist includes symbols whose feed failed so the client can see them.
func (s *MarketDataServer) watchlist() *pb.WatchlistResponse {
	statuses := s.tracker.Status()
	symbols := make([]string, len(statuses))
	for i, st := range statuses {
		symbols[i] = st.Symbol
	}
	return &pb.WatchlistResponse{Symbols: symbols}
}
