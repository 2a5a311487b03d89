// Package queue connects the moderator to an AMQP broker. Moderation
// requests are consumed from a durable queue and verdicts are published
// to the same topic exchange.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vidshare/moderator/internal/model"
)

const (
	RoutingRequest = "video.moderation"
	RoutingVerdict = "video.moderation.verdict"

	DefaultExchange = "vidshare.video"
	DefaultQueue    = "video.moderation"
	DefaultPrefetch = 4
)

var ErrMalformed = errors.New("malformed moderation request")

type Config struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

// NewConfig fills defaults for unset values of cfg.
func NewConfig(cfg model.AMQP) Config {
	ret := Config{
		URL:      cfg.URL,
		Exchange: cfg.Exchange,
		Queue:    cfg.Queue,
		Prefetch: cfg.Prefetch,
	}
	if ret.Exchange == "" {
		ret.Exchange = DefaultExchange
	}
	if ret.Queue == "" {
		ret.Queue = DefaultQueue
	}
	if ret.Prefetch < 1 {
		ret.Prefetch = DefaultPrefetch
	}
	return ret
}

// Request is the message body of a moderation request.
type Request struct {
	VideoID    string `json:"video_id"`
	SourcePath string `json:"source_path"`
}

func DecodeRequest(body []byte) (model.ModerationRequest, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return model.ModerationRequest{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if strings.TrimSpace(req.SourcePath) == "" {
		return model.ModerationRequest{}, fmt.Errorf("%w: source_path is empty", ErrMalformed)
	}
	return model.ModerationRequest{ID: req.VideoID, SourcePath: req.SourcePath}, nil
}

// Handler processes one moderation request. A returned error requeues
// the message.
type Handler func(ctx context.Context, req model.ModerationRequest) error

// Broker consumes requests and publishes verdicts. It implements
// model.UploadCloser.
type Broker struct {
	cfg       Config
	conn      *amqp.Connection
	consumeCh *amqp.Channel

	pubMx     sync.Mutex
	publishCh *amqp.Channel
}

// Dial connects to the broker and declares the exchange, the request
// queue and its binding.
func Dial(_ context.Context, cfg Config) (*Broker, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	b, err := setup(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return b, nil
}

func setup(conn *amqp.Connection, cfg Config) (*Broker, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	_, err = ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	err = ch.QueueBind(cfg.Queue, RoutingRequest, cfg.Exchange, false, nil)
	if err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}
	err = ch.Qos(cfg.Prefetch, 0, false)
	if err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}

	return &Broker{
		cfg:       cfg,
		conn:      conn,
		consumeCh: ch,
		publishCh: pub,
	}, nil
}

// Consume runs workers until ctx is canceled. Each delivery is passed
// to handler and acked, undecodable messages are dropped.
func (b *Broker) Consume(ctx context.Context, workers int, handler Handler) error {
	deliveries, err := b.consumeCh.ConsumeWithContext(
		ctx,
		b.cfg.Queue,
		"",
		false, // autoAck=false
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	workers = max(workers, 1)
	slog.InfoContext(ctx, "starting amqp workers", "workers", workers, "queue", b.cfg.Queue)

	var wg sync.WaitGroup
	closed := make(chan struct{}, workers)
	for id := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !worker(ctx, id, deliveries, handler) {
				closed <- struct{}{}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() == nil && len(closed) > 0 {
		return errors.New("amqp delivery channel closed")
	}
	return nil
}

// worker returns false if deliveries were closed
func worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery, handler Handler) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case d, ok := <-deliveries:
			if !ok {
				slog.WarnContext(ctx, "amqp delivery channel closed", "worker_id", id)
				return false
			}
			process(ctx, d, handler)
		}
	}
}

func process(ctx context.Context, d amqp.Delivery, handler Handler) {
	req, err := DecodeRequest(d.Body)
	if err != nil {
		slog.WarnContext(ctx, "dropping message", "delivery_tag", d.DeliveryTag, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, req); err != nil {
		slog.WarnContext(ctx, "message processing failed, requeueing",
			"delivery_tag", d.DeliveryTag,
			"error", err,
		)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (b *Broker) publish(ctx context.Context, key string, body []byte) error {
	b.pubMx.Lock()
	defer b.pubMx.Unlock()
	return b.publishCh.PublishWithContext(ctx,
		b.cfg.Exchange,
		key,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

// Upload publishes the verdict with RoutingVerdict key.
func (b *Broker) Upload(ctx context.Context, v model.Verdict) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	if err := b.publish(ctx, RoutingVerdict, body); err != nil {
		return fmt.Errorf("publish verdict: %w", err)
	}
	return nil
}

// Request publishes a moderation request, it is the producer side of Consume.
func (b *Broker) Request(ctx context.Context, req model.ModerationRequest) error {
	body, err := json.Marshal(Request{VideoID: req.ID, SourcePath: req.SourcePath})
	if err != nil {
		return err
	}
	if err := b.publish(ctx, RoutingRequest, body); err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	return nil
}

func (b *Broker) Close() error {
	var errs []error
	if b.consumeCh != nil {
		errs = append(errs, b.consumeCh.Close())
	}
	if b.publishCh != nil {
		errs = append(errs, b.publishCh.Close())
	}
	if b.conn != nil && !b.conn.IsClosed() {
		errs = append(errs, b.conn.Close())
	}
	return errors.Join(errs...)
}
