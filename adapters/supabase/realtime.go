package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/preslavrachev/sitebase/core"
)

// HeartbeatInterval is how often a channel pings the realtime server
const HeartbeatInterval = 30 * time.Second

const (
	eventJoin            = "phx_join"
	eventLeave           = "phx_leave"
	eventReply           = "phx_reply"
	eventError           = "phx_error"
	eventClose           = "phx_close"
	eventHeartbeat       = "heartbeat"
	eventPostgresChanges = "postgres_changes"
)

const writeTimeout = 5 * time.Second

// eventBuffer is how many decoded changes may wait for the handler
const eventBuffer = 64

// phoenixMessage is a frame of the Phoenix channel protocol
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type postgresChangesConfig struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type joinPayload struct {
	Config struct {
		Broadcast struct {
			Self bool `json:"self"`
		} `json:"broadcast"`
		Presence struct {
			Key string `json:"key"`
		} `json:"presence"`
		PostgresChanges []postgresChangesConfig `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

// changePayload covers both the current postgres_changes envelope, where
// the change sits under "data", and the older flat INSERT/UPDATE/DELETE
// events
type changePayload struct {
	Data            *changeData `json:"data"`
	changeData
}

type changeData struct {
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Type            core.ChangeType `json:"type"`
	EventType       core.ChangeType `json:"eventType"`
	CommitTimestamp string          `json:"commit_timestamp"`
	Record          core.Row        `json:"record"`
	OldRecord       core.Row        `json:"old_record"`
}

// RealtimeURL derives the websocket endpoint from the project URL
func RealtimeURL(projectURL, key string) (string, error) {
	u, err := url.Parse(strings.TrimRight(projectURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", key)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// channel is one realtime subscription with its own socket
type channel struct {
	conn    *websocket.Conn
	topic   string
	table   string
	handler core.ChangeHandler
	events  chan core.ChangeEvent
	logger  *slog.Logger

	ref       atomic.Int64
	writeMu   sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// dialChannel opens a socket, joins realtime:public:<table> and starts the
// read and heartbeat loops. The channel outlives ctx; close ends it.
func dialChannel(ctx context.Context, wsURL, token, table string, handler core.ChangeHandler, logger *slog.Logger) (*channel, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open realtime socket: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch := &channel{
		conn:    conn,
		topic:   "realtime:public:" + table,
		table:   table,
		handler: handler,
		events:  make(chan core.ChangeEvent, eventBuffer),
		logger:  logger.With("topic", "realtime:public:"+table),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	var join joinPayload
	join.Config.PostgresChanges = []postgresChangesConfig{{Event: "*", Schema: "public", Table: table}}
	join.AccessToken = token
	if err := ch.send(ctx, ch.topic, eventJoin, join); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("failed to join %s: %w", ch.topic, err)
	}

	go ch.readLoop(loopCtx)
	go ch.dispatchLoop(loopCtx)
	go ch.heartbeatLoop(loopCtx)
	return ch, nil
}

func (c *channel) nextRef() string {
	return strconv.FormatInt(c.ref.Add(1), 10)
}

func (c *channel) send(ctx context.Context, topic, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ref := c.nextRef()
	msg := phoenixMessage{Topic: topic, Event: event, Payload: raw, Ref: &ref}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *channel) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(ctx, "phoenix", eventHeartbeat, struct{}{}); err != nil {
				c.logger.Warn("realtime heartbeat failed", "error", err)
				return
			}
		}
	}
}

func (c *channel) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		var msg phoenixMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("realtime socket closed", "error", err)
			}
			return
		}
		if msg.Topic != c.topic {
			continue
		}

		switch msg.Event {
		case eventReply:
			c.handleReply(msg.Payload)
		case eventError, eventClose:
			c.logger.Warn("realtime channel closed by server", "event", msg.Event)
		case eventPostgresChanges, string(core.ChangeInsert), string(core.ChangeUpdate), string(core.ChangeDelete):
			event, ok := decodeChange(msg.Payload, c.table)
			if !ok {
				c.logger.Warn("ignoring malformed change payload")
				continue
			}
			select {
			case c.events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatchLoop runs the handler off the read goroutine, so a handler may
// unsubscribe or block without stalling the socket
func (c *channel) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.events:
			if ctx.Err() != nil {
				return
			}
			c.handler(event)
		}
	}
}

func (c *channel) handleReply(payload json.RawMessage) {
	var reply struct {
		Status   string          `json:"status"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(payload, &reply); err != nil {
		return
	}
	if reply.Status != "ok" {
		c.logger.Warn("realtime join rejected", "status", reply.Status, "response", string(reply.Response))
	}
}

// close leaves the channel and closes the socket. Safe to call repeatedly,
// including from inside the handler.
func (c *channel) close() {
	c.closeOnce.Do(func() {
		if err := c.send(context.Background(), c.topic, eventLeave, struct{}{}); err != nil {
			c.logger.Debug("failed to send leave", "error", err)
		}
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "unsubscribe")
		<-c.done
	})
}

func decodeChange(payload json.RawMessage, table string) (core.ChangeEvent, bool) {
	var p changePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return core.ChangeEvent{}, false
	}

	data := p.changeData
	if p.Data != nil {
		data = *p.Data
	}

	changeType := data.Type
	if changeType == "" {
		changeType = data.EventType
	}
	if changeType == "" {
		return core.ChangeEvent{}, false
	}
	if data.Table == "" {
		data.Table = table
	}

	return core.ChangeEvent{
		Table:           data.Table,
		Schema:          data.Schema,
		Type:            changeType,
		Record:          data.Record,
		OldRecord:       data.OldRecord,
		CommitTimestamp: data.CommitTimestamp,
		Raw:             payload,
	}, true
}
