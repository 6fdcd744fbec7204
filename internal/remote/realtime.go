package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coder/websocket"
)

// ChangeType is the kind of row change a realtime event describes.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one row-change event from the realtime channel, already filtered
// to the subscribed identity's rows. New and Old are the raw row payloads;
// which ones are populated depends on the event type.
type Change struct {
	Table string          `json:"table"`
	Type  ChangeType      `json:"event_type"`
	New   json.RawMessage `json:"new"`
	Old   json.RawMessage `json:"old"`
}

type subscribeFrame struct {
	Event       string   `json:"event"`
	Tables      []string `json:"tables"`
	UserID      string   `json:"user_id"`
	AccessToken string   `json:"access_token"`
}

// Subscription is an open realtime channel. Changes are delivered on
// Changes() until the subscription is closed or the connection drops, at
// which point the channel is closed.
type Subscription struct {
	conn    *websocket.Conn
	changes chan Change
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// Subscribe opens the realtime channel for the current session's rows on the
// cards and decks tables. The subscription lives until Close is called or ctx
// is cancelled.
func (c *Client) Subscribe(ctx context.Context, logger *slog.Logger) (*Subscription, error) {
	session := c.Session()
	if session == nil {
		return nil, fmt.Errorf("cannot subscribe without a session")
	}
	if logger == nil {
		logger = slog.Default()
	}

	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/realtime/v1/websocket?apikey=" + c.apiKey
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime channel: %w", err)
	}

	frame, err := json.Marshal(subscribeFrame{
		Event:       "subscribe",
		Tables:      []string{"cards", "decks"},
		UserID:      session.User.ID,
		AccessToken: session.AccessToken,
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe encode failed")
		return nil, fmt.Errorf("failed to encode subscribe frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe write failed")
		return nil, fmt.Errorf("failed to send subscribe frame: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		conn:    conn,
		changes: make(chan Change, 16),
		cancel:  cancel,
		logger:  logger,
	}
	go sub.readLoop(runCtx)
	return sub, nil
}

// Changes returns the stream of row-change events.
func (s *Subscription) Changes() <-chan Change {
	return s.changes
}

// Close tears the subscription down. Idempotent.
func (s *Subscription) Close() {
	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer close(s.changes)
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("realtime channel closed", "error", err)
			}
			return
		}
		var change Change
		if err := json.Unmarshal(data, &change); err != nil {
			s.logger.Warn("dropping malformed realtime event", "error", err)
			continue
		}
		select {
		case s.changes <- change:
		case <-ctx.Done():
			return
		}
	}
}
