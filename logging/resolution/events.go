// Package resolution emits the decision-path events: what the engine
// resolved an input action to and which secondaries it suggested.
package resolution

import (
	"context"
	"strconv"

	"github.com/h1arc/weaveline/logging"
)

const (
	ResolvedEventType    logging.EventType = "resolution.resolved"
	SpecializedEventType logging.EventType = "resolution.specialized"
)

type ResolvedPayload struct {
	Input    uint32   `json:"input"`
	Resolved uint32   `json:"resolved"`
	Target   uint64   `json:"target,omitempty"`
	Weaves   []uint32 `json:"weaves,omitempty"`
}

type SpecializedPayload struct {
	Role    uint8  `json:"role"`
	Version uint32 `json:"version"`
	Rules   int    `json:"rules"`
}

func Resolved(ctx context.Context, pub logging.Publisher, frame uint64, payload ResolvedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     ResolvedEventType,
		Frame:    frame,
		Actor:    AbilityRef(payload.Input),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryResolution,
		Payload:  payload,
	})
}

func Specialized(ctx context.Context, pub logging.Publisher, frame uint64, payload SpecializedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     SpecializedEventType,
		Frame:    frame,
		Actor:    logging.EntityRef{ID: strconv.Itoa(int(payload.Role)), Kind: logging.EntityKindEngine},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryResolution,
		Payload:  payload,
	})
}

func AbilityRef(id uint32) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatUint(uint64(id), 10), Kind: logging.EntityKindAbility}
}
