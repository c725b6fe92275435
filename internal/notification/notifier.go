package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/frahmantamala/expense-approval/internal"
)

// Message is what a notifier delivers for one expense event.
type Message struct {
	EventID    string                 `json:"event_id"`
	EventType  string                 `json:"event_type"`
	ExpenseID  int64                  `json:"expense_id"`
	CompanyID  int64                  `json:"company_id"`
	ActorID    int64                  `json:"actor_id"`
	Recipients []int64                `json:"recipients"`
	Status     string                 `json:"status"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
	Close() error
}

// LogNotifier writes notifications to the log. It is the default driver.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		"event_type", msg.EventType,
		"event_id", msg.EventID,
		"expense_id", msg.ExpenseID,
		"recipients", msg.Recipients,
		"status", msg.Status)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// NATSNotifier publishes JSON messages on <prefix>.<event type>.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

func NewNATSNotifier(url, prefix string, logger *slog.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("expense-approval"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSNotifier{conn: conn, prefix: prefix, logger: logger}, nil
}

func (n *NATSNotifier) Subject(eventType string) string {
	return n.prefix + "." + eventType
}

func (n *NATSNotifier) Notify(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := n.Subject(msg.EventType)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	n.logger.Debug("notification published", "subject", subject, "expense_id", msg.ExpenseID)
	return nil
}

// Close flushes pending publishes before closing the connection.
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}

// NewNotifier builds the notifier selected by cfg.Driver.
func NewNotifier(cfg internal.NotificationConfig, logger *slog.Logger) (Notifier, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "nats":
		return NewNATSNotifier(cfg.NATSURL, cfg.SubjectPrefix, logger)
	default:
		return nil, fmt.Errorf("unknown notification driver %q", cfg.Driver)
	}
}
