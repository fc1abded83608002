// Package net exposes the engine's debug surface: health and diagnostics
// endpoints plus a websocket feed streaming telemetry frames to observers.
// Nothing here participates in resolution.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	weaveline "github.com/h1arc/weaveline"
	"github.com/h1arc/weaveline/logging"
)

type HTTPHandlerConfig struct {
	Logger       *log.Logger
	Router       *logging.Router
	FeedInterval time.Duration
}

type feedFrame struct {
	Ver        int                        `json:"ver"`
	Type       string                     `json:"type"`
	ServerTime int64                      `json:"serverTime"`
	Frame      uint64                     `json:"frame"`
	Version    uint32                     `json:"configVersion"`
	Telemetry  weaveline.TelemetrySnapshot `json:"telemetry"`
	Toggles    map[string]bool            `json:"toggles"`
}

type clientMessage struct {
	Ver     int    `json:"ver,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
}

const feedProtocolVersion = 1

func NewHTTPHandler(engine *weaveline.Engine, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	feedInterval := cfg.FeedInterval
	if feedInterval <= 0 {
		feedInterval = 250 * time.Millisecond
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status        string                     `json:"status"`
			ServerTime    int64                      `json:"serverTime"`
			Frame         uint64                     `json:"frame"`
			ConfigVersion uint32                     `json:"configVersion"`
			Telemetry     weaveline.TelemetrySnapshot `json:"telemetry"`
			Toggles       map[string]bool            `json:"toggles"`
			Logging       any                        `json:"logging,omitempty"`
		}{
			Status:        "ok",
			ServerTime:    time.Now().UnixMilli(),
			Frame:         engine.Frame(),
			ConfigVersion: engine.ConfigVersion(),
			Telemetry:     engine.TelemetrySnapshot(),
			Toggles:       engine.Toggles(),
		}
		if cfg.Router != nil {
			payload.Logging = cfg.Router.Stats()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/config/toggle", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		}
		if r.Body == nil {
			httpError(w, "missing payload", nethttp.StatusBadRequest)
			return
		}
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
		if req.Name == "" {
			httpError(w, "missing name", nethttp.StatusBadRequest)
			return
		}
		engine.SetToggle(req.Name, req.Enabled)

		response := struct {
			Status        string `json:"status"`
			ConfigVersion uint32 `json:"configVersion"`
		}{Status: "ok", ConfigVersion: engine.ConfigVersion()}
		data, err := json.Marshal(response)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade failed: %v", err)
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var msg clientMessage
				if err := json.Unmarshal(payload, &msg); err != nil {
					logger.Printf("discarding malformed feed message: %v", err)
					continue
				}
				if msg.Type == "toggle" && msg.Name != "" {
					engine.SetToggle(msg.Name, msg.Enabled)
				}
			}
		}()

		ticker := time.NewTicker(feedInterval)
		defer ticker.Stop()
		defer conn.Close()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				frame := feedFrame{
					Ver:        feedProtocolVersion,
					Type:       "telemetry",
					ServerTime: time.Now().UnixMilli(),
					Frame:      engine.Frame(),
					Version:    engine.ConfigVersion(),
					Telemetry:  engine.TelemetrySnapshot(),
					Toggles:    engine.Toggles(),
				}
				data, err := json.Marshal(frame)
				if err != nil {
					logger.Printf("failed to marshal feed frame: %v", err)
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	})

	return mux
}

func httpError(w nethttp.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
