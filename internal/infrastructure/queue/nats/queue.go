package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/floraqa/internal/infrastructure/resilience"
)

const (
	DefaultRebuildSubject = "floraqa.index.rebuild"
	DefaultUpdatedSubject = "floraqa.index.updated"
	workerQueueGroup      = "floraqa-workers"
)

// Event is the payload of both index subjects.
type Event struct {
	Reason string    `json:"reason,omitempty"`
	Chunks int       `json:"chunks,omitempty"`
	At     time.Time `json:"at"`
}

type Queue struct {
	conn           *nats.Conn
	rebuildSubject string
	updatedSubject string
	executor       *resilience.Executor
	now            func() time.Time
}

type Options struct {
	ClientName           string
	RebuildSubject       string
	UpdatedSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.ClientName
	if name == "" {
		name = "floraqa"
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newQueue(conn, options), nil
}

func newQueue(conn *nats.Conn, options Options) *Queue {
	q := &Queue{
		conn:           conn,
		rebuildSubject: options.RebuildSubject,
		updatedSubject: options.UpdatedSubject,
		executor:       options.ResilienceExecutor,
		now:            time.Now,
	}
	if q.rebuildSubject == "" {
		q.rebuildSubject = DefaultRebuildSubject
	}
	if q.updatedSubject == "" {
		q.updatedSubject = DefaultUpdatedSubject
	}
	return q
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRebuildRequested(ctx context.Context, reason string) error {
	return q.publish(ctx, q.rebuildSubject, Event{Reason: reason, At: q.now().UTC()})
}

func (q *Queue) PublishIndexUpdated(ctx context.Context, chunks int) error {
	return q.publish(ctx, q.updatedSubject, Event{Chunks: chunks, At: q.now().UTC()})
}

func (q *Queue) publish(ctx context.Context, subject string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, resilience.DependencyQueue, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}

// SubscribeRebuildRequested delivers each rebuild request to one worker of the
// queue group. It blocks until ctx is done, then drains.
func (q *Queue) SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, Event) error) error {
	return q.subscribe(ctx, q.rebuildSubject, workerQueueGroup, handler)
}

// SubscribeIndexUpdated delivers every update notice to every subscriber.
func (q *Queue) SubscribeIndexUpdated(ctx context.Context, handler func(context.Context, Event) error) error {
	return q.subscribe(ctx, q.updatedSubject, "", handler)
}

func (q *Queue) subscribe(ctx context.Context, subject, group string, handler func(context.Context, Event) error) error {
	callback := func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Warn("nats_event_decode_failed", "subject", subject, "error", err)
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			slog.Error("nats_handler_failed", "subject", subject, "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = q.conn.QueueSubscribe(subject, group, callback)
	} else {
		sub, err = q.conn.Subscribe(subject, callback)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// decodeEvent accepts a JSON event or a bare reason string.
func decodeEvent(data []byte) (Event, error) {
	var event Event
	if len(data) == 0 {
		return event, nil
	}
	if data[0] != '{' {
		event.Reason = string(data)
		return event, nil
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}
