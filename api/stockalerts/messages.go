package stockalerts

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Prices and thresholds are decimal strings so no precision is lost on the
// wire.

type Quote struct {
	Symbol    string                 `json:"symbol"`
	Price     string                 `json:"price"`
	Timestamp *timestamppb.Timestamp `json:"timestamp,omitempty"`
}

type Alert struct {
	Id             string                 `json:"id"`
	Symbol         string                 `json:"symbol"`
	Metric         string                 `json:"metric"`
	Direction      string                 `json:"direction"`
	Threshold      string                 `json:"threshold"`
	Armed          bool                   `json:"armed"`
	Paused         bool                   `json:"paused"`
	Note           string                 `json:"note,omitempty"`
	Email          string                 `json:"email,omitempty"`
	TelegramChatId string                 `json:"telegram_chat_id,omitempty"`
	CreatedAt      *timestamppb.Timestamp `json:"created_at,omitempty"`
	LastFired      *timestamppb.Timestamp `json:"last_fired,omitempty"`
}

type AlertEvent struct {
	RuleId    string                 `json:"rule_id"`
	Symbol    string                 `json:"symbol"`
	Metric    string                 `json:"metric"`
	Direction string                 `json:"direction"`
	Threshold string                 `json:"threshold"`
	Price     string                 `json:"price"`
	Value     string                 `json:"value"`
	Note      string                 `json:"note,omitempty"`
	Timestamp *timestamppb.Timestamp `json:"timestamp,omitempty"`
}

type SubscribeQuotesRequest struct {
	Symbols []string `json:"symbols"`
}

type GetWatchlistRequest struct{}

type WatchlistRequest struct {
	Symbol string `json:"symbol"`
}

type WatchlistResponse struct {
	Symbols []string `json:"symbols"`
}

type CreateAlertRequest struct {
	Symbol         string `json:"symbol"`
	Metric         string `json:"metric,omitempty"`
	Direction      string `json:"direction"`
	Threshold      string `json:"threshold"`
	Note           string `json:"note,omitempty"`
	Email          string `json:"email,omitempty"`
	TelegramChatId string `json:"telegram_chat_id,omitempty"`
}

type AlertResponse struct {
	Alert *Alert `json:"alert"`
}

type ListAlertsRequest struct {
	Symbol string `json:"symbol,omitempty"`
}

type ListAlertsResponse struct {
	Alerts []*Alert `json:"alerts"`
}

type AlertIDRequest struct {
	Id string `json:"id"`
}

type DeleteAlertResponse struct {
	Success bool `json:"success"`
}

type SubscribeAlertsRequest struct{}
