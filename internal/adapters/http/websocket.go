package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/greenhouse-ops/zonefix/internal/adapters/nats"
)

// feedMessage is sent by clients to narrow or widen the resolution feed.
type feedMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Zone   string `json:"zone"`   // zone ID, "none" for unmatched fixes, "" for all
}

// feedSubject maps a client zone filter to a NATS subject.
func feedSubject(zone string) string {
	if zone == "" {
		return natsadapter.ResolvedSubjectPrefix + ">"
	}
	return natsadapter.ResolutionSubject(zone)
}

// ResolutionFeedHandler upgrades to WebSocket and relays resolution events
// to the client. Every connection starts subscribed to all zones; clients
// send {"action":"subscribe","zone":"Z-04"} to add a zone filter and
// unsubscribe to drop one.
func ResolutionFeedHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		log := slog.Default().With("remote_addr", c.RemoteAddr().String())
		log.Info("feed client connected")

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription)

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}
		relay := func(msg *nats.Msg) {
			_ = writeJSON(json.RawMessage(msg.Data))
		}

		all := feedSubject("")
		sub, err := nc.Subscribe(all, relay)
		if err != nil {
			log.Error("feed subscribe", "subject", all, "error", err)
			return
		}
		subs[all] = sub

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m feedMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			subject := feedSubject(m.Zone)

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				s, err := nc.Subscribe(subject, relay)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Info("feed client disconnected")
	}
}
