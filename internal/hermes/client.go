package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client is the notification dispatcher. Publishing is fire-and-forget from
// the engine's point of view; delivery is the broker's concern.
type Client interface {
	Publish(subject string, data interface{}) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
	Close()
}

// Options tune the MARKET stream and the profile-update subscription.
type Options struct {
	// Name identifies this process to the NATS server.
	Name string
	// Retention for lifecycle events; late consumers replay within it.
	StreamMaxAge time.Duration
	// Window in which a republished event with the same MsgID is dropped.
	DuplicateWindow time.Duration
	// QueueGroup shares profile notices among replicas. Leave empty when
	// each replica keeps its own match cache and must see every notice.
	QueueGroup string
	// FlushTimeout bounds how long Close waits for outstanding acks.
	FlushTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Name:            "bazaar",
		StreamMaxAge:    30 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		FlushTimeout:    5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Name == "" {
		o.Name = d.Name
	}
	if o.StreamMaxAge <= 0 {
		o.StreamMaxAge = d.StreamMaxAge
	}
	if o.DuplicateWindow <= 0 {
		o.DuplicateWindow = d.DuplicateWindow
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = d.FlushTimeout
	}
	return o
}

// StreamConfig describes the MARKET stream for the given options.
func StreamConfig(o Options) jetstream.StreamConfig {
	o = o.withDefaults()
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "marketplace job, proposal and invitation lifecycle",
		Subjects:    streamSubjects,
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		Storage:     jetstream.FileStorage,
		MaxAge:      o.StreamMaxAge,
		Duplicates:  o.DuplicateWindow,
	}
}

// NATSClient publishes lifecycle events into the MARKET stream with
// per-event dedupe ids and listens for profile notices on core NATS.
type NATSClient struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	opts   Options
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewNATSClient(ctx context.Context, url string, opts Options, logger *slog.Logger) (*NATSClient, error) {
	opts = opts.withDefaults()
	nc, err := nats.Connect(url,
		nats.Name(opts.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc, jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
		logger.Warn("event not acknowledged", "subject", msg.Subject, "msg_id", msg.Header.Get(jetstream.MsgIDHeader), "error", err)
	}))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	c := &NATSClient{conn: nc, js: js, opts: opts, logger: logger}
	if _, err := js.CreateOrUpdateStream(ctx, StreamConfig(opts)); err != nil {
		logger.Warn("failed to ensure stream", "stream", StreamName, "error", err)
	}
	return c, nil
}

// Publish sends lifecycle subjects through JetStream without waiting for the
// ack; other subjects go over core NATS.
func (c *NATSClient) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if !Streamed(subject) {
		return c.conn.Publish(subject, payload)
	}
	var opts []jetstream.PublishOpt
	if id := MsgID(data); id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}
	_, err = c.js.PublishAsync(subject, payload, opts...)
	return err
}

func (c *NATSClient) Subscribe(subject string, handler func(string, []byte)) error {
	cb := func(msg *nats.Msg) { handler(msg.Subject, msg.Data) }
	var (
		sub *nats.Subscription
		err error
	)
	if c.opts.QueueGroup != "" {
		sub, err = c.conn.QueueSubscribe(subject, c.opts.QueueGroup, cb)
	} else {
		sub, err = c.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return err
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Close drops subscriptions, waits up to FlushTimeout for pending acks and
// closes the connection.
func (c *NATSClient) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	select {
	case <-c.js.PublishAsyncComplete():
	case <-time.After(c.opts.FlushTimeout):
		c.logger.Warn("closing with unacknowledged events", "pending", c.js.PublishAsyncPending())
	}
	c.conn.Close()
}

// MsgID returns the dedupe id of an event, or "" for payloads without one.
func MsgID(data interface{}) string {
	if e, ok := data.(interface{ MsgID() string }); ok {
		return e.MsgID()
	}
	return ""
}
