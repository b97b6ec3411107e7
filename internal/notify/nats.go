package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "assetpipe.notifications"

// NATS publishes notifications as JSON on a core NATS subject.
type NATS struct {
	conn    *nats.Conn
	subject string
}

// NewNATS connects to the server at url.
func NewNATS(url, subject string) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("assetpipe"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNotify, "failed to connect to NATS").
			WithContext("url", url).Build()
	}

	slog.Info("NATS notifications enabled", "url", url, "subject", subject)
	return &NATS{conn: conn, subject: subject}, nil
}

// Encode returns the wire payload for n.
func Encode(n Notification) ([]byte, error) {
	return json.Marshal(n)
}

func (c *NATS) Notify(_ context.Context, n Notification) error {
	data, err := Encode(n)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal notification").Build()
	}
	if err := c.conn.Publish(c.subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to publish notification").
			WithContext("subject", c.subject).Build()
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (c *NATS) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}
