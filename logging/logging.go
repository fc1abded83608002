// Package logging is the structured event bus for non-critical engine
// observability: resolution traces, provider faults, targeting decisions.
// Publishing never blocks the tick thread; a full queue drops the event.
package logging

import (
	"context"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

type EntityKind string

const (
	EntityKindUnknown  EntityKind = "unknown"
	EntityKindActor    EntityKind = "actor"
	EntityKindAbility  EntityKind = "ability"
	EntityKindProvider EntityKind = "provider"
	EntityKindEngine   EntityKind = "engine"
)

type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

const (
	CategoryResolution = "resolution"
	CategoryTargeting  = "targeting"
	CategorySystem     = "system"
)

type Event struct {
	Type     EventType `json:"type"`
	Frame    uint64    `json:"frame"`
	Time     time.Time `json:"time"`
	Actor    EntityRef `json:"actor"`
	Severity Severity  `json:"severity"`
	Category string    `json:"category,omitempty"`
	Payload  any       `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher { return nopPublisher{} }
