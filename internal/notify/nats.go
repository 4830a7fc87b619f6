package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultNATSSubject = "logpack.created"

type NATSConfig struct {
	URL            string
	Subject        string
	ConnectTimeout time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration
}

// NATS publishes a Message per archive on a subject.
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = defaultNATSSubject
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = nats.DefaultMaxReconnect
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("logpack"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return &NATS{conn: conn, subject: cfg.Subject}, nil
}

func (n *NATS) Name() string {
	return "nats:" + n.subject
}

func (n *NATS) Send(ctx context.Context, path string, metadata string) error {
	payload, err := json.Marshal(NewMessage(path, metadata))
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return n.conn.FlushWithContext(ctx)
}

func (n *NATS) Close() {
	if n == nil || n.conn == nil {
		return
	}
	n.conn.Close()
}
