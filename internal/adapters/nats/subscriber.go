package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
	"github.com/greenhouse-ops/zonefix/internal/pkg/logging"
	"github.com/greenhouse-ops/zonefix/internal/pkg/metrics"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	durable    string
	maxDeliver int
	subs       []*nats.Subscription
}

// NewSubscriber connects to NATS and binds to the fix stream under a durable
// consumer name.
func NewSubscriber(url, durable string, maxDeliver int) (*Subscriber, error) {
	conn, err := dial(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStreams(js); err != nil {
		conn.Close()
		return nil, err
	}
	if maxDeliver <= 0 {
		maxDeliver = 3
	}
	return &Subscriber{conn: conn, js: js, durable: durable, maxDeliver: maxDeliver}, nil
}

// queuedFix is the wire form of a fix on the intake subject. Coordinates are
// pointers so that a missing value can be told apart from zero.
type queuedFix struct {
	ID  string `json:"id"`
	Bed string `json:"bed"`
	Fix struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Accuracy  float64  `json:"accuracy"`
	} `json:"fix"`
}

// decodeFix parses a queued fix. Missing coordinates yield ErrInvalidFix.
func decodeFix(data []byte) (*domain.FixSubmission, error) {
	var q queuedFix
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, err
	}
	if q.Fix.Latitude == nil || q.Fix.Longitude == nil {
		return nil, fmt.Errorf("%w: latitude and longitude are required", domain.ErrInvalidFix)
	}
	return &domain.FixSubmission{
		ID:  q.ID,
		Bed: q.Bed,
		Fix: domain.GpsFix{
			Latitude:       *q.Fix.Latitude,
			Longitude:      *q.Fix.Longitude,
			AccuracyMeters: q.Fix.Accuracy,
		},
	}, nil
}

// SubscribeFixes delivers queued fixes to handler. A message is acked when
// handler returns nil and redelivered otherwise; payloads that cannot be
// decoded or lack coordinates are terminated.
func (s *Subscriber) SubscribeFixes(ctx context.Context, handler func(ctx context.Context, sub *domain.FixSubmission) error) error {
	log := logging.FromContext(ctx)

	sub, err := s.js.Subscribe(FixSubjects, func(msg *nats.Msg) {
		fs, err := decodeFix(msg.Data)
		if err != nil {
			outcome := "undecodable"
			if errors.Is(err, domain.ErrInvalidFix) {
				outcome = "invalid"
			}
			metrics.FixesConsumed.WithLabelValues(outcome).Inc()
			log.Warn("dropping queued fix", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if fs.ID == "" {
			if md, err := msg.Metadata(); err == nil {
				fs.ID = fmt.Sprintf("%s-%d", md.Stream, md.Sequence.Stream)
			}
		}
		if err := handler(ctx, fs); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(s.durable),
		nats.ManualAck(),
		nats.MaxDeliver(s.maxDeliver),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
