package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
)

const (
	// ResolvedSubjectPrefix is followed by the zone ID, or "none".
	ResolvedSubjectPrefix = "scouting.zone.resolved."
	// FixSubjects carries fixes queued for resolution.
	FixSubjects = "scouting.fix.>"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
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

	return &Publisher{conn: conn, js: js}, nil
}

func ensureStreams(js nats.JetStreamContext) error {
	streams := []nats.StreamConfig{
		{
			Name:      "ZONE_RESOLUTIONS",
			Subjects:  []string{ResolvedSubjectPrefix + ">"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "SCOUTING_FIXES",
			Subjects:  []string{FixSubjects},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}

// PublishResolution publishes a resolution on its zone's subject.
func (p *Publisher) PublishResolution(ctx context.Context, res *domain.ScoutingResolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(ResolutionSubject(res.Result.ZoneID), data, nats.Context(ctx))
	return err
}

// ResolutionSubject returns the subject a resolution for zoneID is published on.
func ResolutionSubject(zoneID string) string {
	if zoneID == "" {
		return ResolvedSubjectPrefix + "none"
	}
	return ResolvedSubjectPrefix + subjectToken(zoneID)
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	return tokenReplacer.Replace(s)
}

// Conn returns the underlying connection, shared with the live feed relay.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// dial creates a plain NATS connection with reconnects enabled.
func dial(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
