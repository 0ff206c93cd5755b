package domain

import "context"

// EventSink mirrors engine events outward for processes that cannot attach
// to the in-process bus, e.g. the Redis stream mirror.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// TickerMirror exposes the latest quotes to external consumers.
type TickerMirror interface {
	MirrorTicker(ctx context.Context, t Ticker) error
}
