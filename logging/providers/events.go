// Package providers emits rule-provider lifecycle events, most importantly
// the fault event published when a provider panics during specialization or
// evaluation and gets downgraded to a pass-through.
package providers

import (
	"context"

	"github.com/h1arc/weaveline/logging"
)

const FaultEventType logging.EventType = "providers.fault"

type FaultPayload struct {
	Provider string `json:"provider,omitempty"`
	Role     uint8  `json:"role"`
	Version  uint32 `json:"version"`
	Stage    string `json:"stage"`
	Panic    string `json:"panic"`
}

const (
	StageSpecialize = "specialize"
	StageEvaluate   = "evaluate"
)

func Fault(ctx context.Context, pub logging.Publisher, frame uint64, payload FaultPayload) {
	if pub == nil {
		return
	}
	actor := logging.EntityRef{ID: payload.Provider, Kind: logging.EntityKindProvider}
	pub.Publish(ctx, logging.Event{
		Type:     FaultEventType,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}
