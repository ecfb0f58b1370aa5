package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/module"
)

// Server is the dispatcher's admin HTTP surface: liveness, Prometheus
// metrics, a read-only snapshot of the main configuration and loaded
// modules, and a WebSocket feed of dispatch cycle events. Grounded on the
// alert-history service's internal/api/router.go mux wiring, trimmed to
// this dispatcher's much smaller endpoint set.
type Server struct {
	registry *module.Registry
	mainCfg  *config.Loader
	hub      *Hub
	logger   *slog.Logger
}

// New builds the admin router. hub may be shared with the process that
// drives dispatch cycles so it can call hub.Broadcast after each one.
func New(registry *module.Registry, mainCfg *config.Loader, hub *Hub, logger *slog.Logger) *Server {
	return &Server{registry: registry, mainCfg: mainCfg, hub: hub, logger: logger}
}

// Router builds the mux.Router exposing /healthz, /metrics, /config and
// /events.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, loaded := s.mainCfg.Current()
	status := http.StatusOK
	if !loaded {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{
		"status":          boolToStatus(loaded),
		"config_loaded":   loaded,
		"modules_tracked": len(s.registry.Snapshot()),
	})
}

func boolToStatus(loaded bool) string {
	if loaded {
		return "ok"
	}
	return "unconfigured"
}

// moduleView is the JSON-facing projection of module.Descriptor: it omits
// the loader, logger and content hashes, and surfaces Loaded and the
// configuration fields an operator cares about without exporting the
// Descriptor's internals.
type moduleView struct {
	ID              string `json:"id"`
	ConfigPath      string `json:"config_path"`
	CodePath        string `json:"code_path"`
	Loaded          bool   `json:"loaded"`
	TriggerLevel    string `json:"trigger_level"`
	CallingAET      string `json:"calling_aet"`
	DestinationName string `json:"destination_name"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, loaded := s.mainCfg.Current()

	descs := s.registry.Snapshot()
	modules := make([]moduleView, 0, len(descs))
	for _, d := range descs {
		modules = append(modules, moduleView{
			ID:              d.ID,
			ConfigPath:      d.ConfigPath,
			CodePath:        d.CodePath,
			Loaded:          d.Loaded,
			TriggerLevel:    string(d.Config.TriggerLevel),
			CallingAET:      d.Config.CallingAET,
			DestinationName: d.Config.DestinationName,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"main_config_loaded": loaded,
		"main_config":        cfg,
		"modules":            modules,
	})
}

// handleEvents upgrades to a WebSocket and streams CycleEvents until the
// client disconnects. Grounded on silence_ws.go's HandleWebSocket/readPump
// pair; this dispatcher has no client-to-server message of its own, so the
// read pump exists purely to notice disconnects and keep pings flowing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	s.hub.register <- conn
	go s.readPump(conn)
}

func (s *Server) readPump(conn *websocket.Conn) {
	defer func() { s.hub.unregister <- conn }()
	go func() {
		for range time.Tick(30 * time.Second) {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}()
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
