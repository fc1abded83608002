// Package targeting emits target-selection events for debugging the heal
// cascade.
package targeting

import (
	"context"
	"strconv"

	"github.com/h1arc/weaveline/logging"
)

const SelectedEventType logging.EventType = "targeting.selected"

type SelectedPayload struct {
	Ability uint32 `json:"ability"`
	Target  uint64 `json:"target"`
}

func Selected(ctx context.Context, pub logging.Publisher, frame uint64, payload SelectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     SelectedEventType,
		Frame:    frame,
		Actor:    logging.EntityRef{ID: strconv.FormatUint(payload.Target, 10), Kind: logging.EntityKindActor},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryTargeting,
		Payload:  payload,
	})
}
