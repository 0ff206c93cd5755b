package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

const (
	// eventStream is the capped stream engine events are appended to,
	// trimmed with XADD MAXLEN ~.
	eventStream  = "matreshka:events"
	streamMaxLen = 10000

	// tickerTTL bounds how stale a mirrored quote can get when the engine
	// stops writing.
	tickerTTL = 30 * time.Second
)

// Mirror copies engine events onto a Redis stream and the latest quotes
// onto per-pair keys. Consumers read with XREAD / GET; nothing in the
// engine depends on them keeping up.
type Mirror struct {
	rdb *redis.Client
}

var (
	_ domain.EventSink    = (*Mirror)(nil)
	_ domain.TickerMirror = (*Mirror)(nil)
)

// NewMirror creates a Mirror backed by the given Client.
func NewMirror(c *Client) *Mirror {
	return &Mirror{rdb: c.Underlying()}
}

// Publish appends one event to the capped stream as a JSON payload.
func (m *Mirror) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Kind, err)
	}
	args := &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":    string(ev.Kind),
			"payload": payload,
		},
	}
	if err := m.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", ev.Kind, err)
	}
	return nil
}

// MirrorTicker writes the latest quote for a venue and pair under a TTL key.
func (m *Mirror) MirrorTicker(ctx context.Context, t domain.Ticker) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redis: marshal ticker %s %s: %w", t.Venue, t.Symbol, err)
	}
	key := tickerKey(t.Venue, t.Symbol)
	if err := m.rdb.Set(ctx, key, payload, tickerTTL).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// ReadEvents reads up to count events appended after lastID. Use "0" to
// read from the beginning or "$" for new events only. A quiet stream
// returns an empty slice, not an error.
func (m *Mirror) ReadEvents(ctx context.Context, lastID string, count int) ([]domain.Event, error) {
	args := &redis.XReadArgs{
		Streams: []string{eventStream, lastID},
		Count:   int64(count),
		Block:   -1,
	}
	results, err := m.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read: %w", err)
	}

	var events []domain.Event
	for _, s := range results {
		for _, msg := range s.Messages {
			raw, ok := msg.Values["payload"].(string)
			if !ok {
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func tickerKey(venueID string, sym domain.Symbol) string {
	return "matreshka:ticker:" + venueID + ":" + sym.String()
}
