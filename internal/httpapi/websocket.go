package httpapi

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stock-price-alerts/internal/pubsub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

const (
	envelopeQuote = "quote"
	envelopeAlert = "alert"
)

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// clientMessage changes the quote filter of a live connection, e.g.
// {"action":"subscribe","symbols":["AAPL","MSFT"]}.
type clientMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// handleWebsocket pushes live quotes and fired alerts to a UI client. The
// optional symbols query parameter narrows the quote stream, and a subscribe
// message from the client replaces the filter. Alerts are always sent.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	symbols := []string{pubsub.AllSymbols}
	if raw := c.Query("symbols"); raw != "" {
		symbols = strings.Split(raw, ",")
	}

	id := "ws-" + uuid.NewString()
	quotes := s.deps.Broker.Subscribe(id, symbols, 256)
	defer s.deps.Broker.Unsubscribe(id)
	events := s.deps.TriggerBus.Subscribe(id, 64)
	defer s.deps.TriggerBus.Unsubscribe(id)

	s.logger.Info("Websocket client connected", zap.String("client", id), zap.Strings("symbols", symbols))

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				var syntaxErr *json.SyntaxError
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
					s.logger.Debug("Ignoring malformed websocket message", zap.String("client", id), zap.Error(err))
					continue
				}
				return
			}
			if msg.Action != "subscribe" {
				continue
			}
			filter := msg.Symbols
			if len(filter) == 0 {
				filter = []string{pubsub.AllSymbols}
			}
			s.deps.Broker.UpdateSubscription(id, filter)
			s.logger.Debug("Websocket filter updated", zap.String("client", id), zap.Strings("symbols", filter))
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg envelope
		select {
		case <-done:
			s.logger.Info("Websocket client disconnected", zap.String("client", id))
			return
		case quote, ok := <-quotes.QuoteChan:
			if !ok {
				return
			}
			msg = envelope{Type: envelopeQuote, Data: quote}
		case event, ok := <-events.Events:
			if !ok {
				return
			}
			msg = envelope{Type: envelopeAlert, Data: event}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Warn("Websocket write failed", zap.String("client", id), zap.Error(err))
			return
		}
	}
}
