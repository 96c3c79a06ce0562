package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Alert is what the alert action emits.
type Alert struct {
	ID       string    `json:"id"`
	Mode     string    `json:"mode"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// AlertSink delivers alerts somewhere outside the script.
type AlertSink interface {
	Send(ctx context.Context, a Alert) error
}

// LogSink writes alerts to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(_ context.Context, a Alert) error {
	s.Logger.Warn("security alert", "id", a.ID, "mode", a.Mode, "severity", a.Severity, "message", a.Message)
	return nil
}

// WebsocketSink sends each alert as one JSON text message.
type WebsocketSink struct {
	URL    string
	Dialer *websocket.Dialer
}

func NewWebsocketSink(url string) *WebsocketSink {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	return &WebsocketSink{URL: url, Dialer: &dialer}
}

func (s *WebsocketSink) Send(ctx context.Context, a Alert) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(a); err != nil {
		return fmt.Errorf("websocket send failed: %w", err)
	}
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
