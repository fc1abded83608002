package weaveline

import (
	"os"
	"sync/atomic"
	"time"
)

type telemetryCounters struct {
	resolutions      atomic.Uint64
	frameCacheHits   atomic.Uint64
	frameCacheMisses atomic.Uint64
	rebuilds         atomic.Uint64
	providerFaults   atomic.Uint64
	weaveSuggestions atomic.Uint64
	stateUpdates     atomic.Uint64
	rosterUpdates    atomic.Uint64
	updateNanosTotal atomic.Uint64
	lastUpdateNanos  atomic.Uint64
	debug            bool
}

// TelemetrySnapshot is the monitoring view served by the debug surface. It
// never feeds back into resolution.
type TelemetrySnapshot struct {
	Resolutions      uint64 `json:"resolutions"`
	FrameCacheHits   uint64 `json:"frameCacheHits"`
	FrameCacheMisses uint64 `json:"frameCacheMisses"`
	Rebuilds         uint64 `json:"rebuilds"`
	ProviderFaults   uint64 `json:"providerFaults"`
	WeaveSuggestions uint64 `json:"weaveSuggestions"`
	StateUpdates     uint64 `json:"stateUpdates"`
	RosterUpdates    uint64 `json:"rosterUpdates"`
	AvgUpdateMicros  uint64 `json:"avgUpdateMicros"`
	LastUpdateMicros uint64 `json:"lastUpdateMicros"`
}

func newTelemetryCounters() *telemetryCounters {
	t := &telemetryCounters{}
	if os.Getenv("WEAVELINE_DEBUG_TELEMETRY") == "1" {
		t.debug = true
	}
	return t
}

func (t *telemetryCounters) RecordResolution() {
	t.resolutions.Add(1)
}

func (t *telemetryCounters) RecordFrameCache(hit bool) {
	if hit {
		t.frameCacheHits.Add(1)
	} else {
		t.frameCacheMisses.Add(1)
	}
}

func (t *telemetryCounters) RecordRebuild() {
	t.rebuilds.Add(1)
}

func (t *telemetryCounters) RecordProviderFault() {
	t.providerFaults.Add(1)
}

func (t *telemetryCounters) RecordWeaves(n int) {
	if n <= 0 {
		return
	}
	t.weaveSuggestions.Add(uint64(n))
}

func (t *telemetryCounters) RecordStateUpdate(elapsed time.Duration) {
	nanos := elapsed.Nanoseconds()
	if nanos < 0 {
		nanos = 0
	}
	t.stateUpdates.Add(1)
	t.updateNanosTotal.Add(uint64(nanos))
	t.lastUpdateNanos.Store(uint64(nanos))
}

func (t *telemetryCounters) RecordRosterUpdate() {
	t.rosterUpdates.Add(1)
}

func (t *telemetryCounters) DebugEnabled() bool {
	return t.debug
}

func (t *telemetryCounters) Snapshot() TelemetrySnapshot {
	updates := t.stateUpdates.Load()
	var avgMicros uint64
	if updates > 0 {
		avgMicros = t.updateNanosTotal.Load() / updates / 1000
	}
	return TelemetrySnapshot{
		Resolutions:      t.resolutions.Load(),
		FrameCacheHits:   t.frameCacheHits.Load(),
		FrameCacheMisses: t.frameCacheMisses.Load(),
		Rebuilds:         t.rebuilds.Load(),
		ProviderFaults:   t.providerFaults.Load(),
		WeaveSuggestions: t.weaveSuggestions.Load(),
		StateUpdates:     updates,
		RosterUpdates:    t.rosterUpdates.Load(),
		AvgUpdateMicros:  avgMicros,
		LastUpdateMicros: t.lastUpdateNanos.Load() / 1000,
	}
}
