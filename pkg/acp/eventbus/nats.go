// Package eventbus optionally mirrors Update Router and Tool-Call
// Registry events onto NATS subjects, for multi-process deployments
// where something other than the client process wants a live feed of
// session activity (a dashboard, a second audit consumer). It is pure
// fan-out: the core runtime never reads back from the bus, so a bus
// outage never blocks the ACP session.
//
// Grounded on internal/events/bus/nats.go's connection-options and
// reconnect-handler pattern.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
)

// Event is the envelope published for every mirrored update.
type Event struct {
	SessionID string          `json:"sessionId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bus publishes session activity to NATS subjects shaped
// "acp.session.<id>.<kind>".
type Bus struct {
	conn *nats.Conn
	log  *corelog.Logger
}

// Config configures the NATS connection.
type Config struct {
	URL           string
	ClientName    string
	MaxReconnects int
	Logger        *corelog.Logger
}

// Connect dials NATS with reconnect handlers that log rather than
// crash the caller, mirroring the teacher's treatment of a best-effort
// side channel.
func Connect(cfg Config) (*Bus, error) {
	log := cfg.Logger
	if log == nil {
		log = corelog.Default()
	}
	log = log.WithComponent("eventbus")

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", corelog.Field("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", corelog.Field("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("nats error", corelog.Field("subject", subject), corelog.Field("error", err.Error()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect to %q: %w", cfg.URL, err)
	}
	return &Bus{conn: conn, log: log}, nil
}

// Publish mirrors one event for sessionID/kind. Marshal/publish errors
// are logged, not returned: a bus hiccup must never propagate back into
// the ACP session's critical path.
func (b *Bus) Publish(sessionID, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("failed to marshal mirrored event", corelog.Field("kind", kind), corelog.Field("error", err.Error()))
		return
	}
	env := Event{SessionID: sessionID, Kind: kind, Payload: data, Timestamp: time.Now()}
	envData, err := json.Marshal(env)
	if err != nil {
		b.log.Warn("failed to marshal event envelope", corelog.Field("error", err.Error()))
		return
	}
	subject := fmt.Sprintf("acp.session.%s.%s", sessionID, kind)
	if err := b.conn.Publish(subject, envData); err != nil {
		b.log.Warn("failed to publish mirrored event", corelog.Field("subject", subject), corelog.Field("error", err.Error()))
	}
}

// IsConnected reports whether the underlying NATS connection is live.
func (b *Bus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close drains and closes the connection.
func (b *Bus) Close() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.log.Warn("error draining nats connection", corelog.Field("error", err.Error()))
		b.conn.Close()
	}
}
