package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/NTillmann/davinci-fireplace-ha/internal/bridges/ifc"
)

// ProbeRequest is the optional body of POST /api/v1/probe. An empty
// body probes the configured bridge address.
type ProbeRequest struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// handleStatus returns the connection state and operational counters.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"connection": s.coordinator.ConnectionStatus(),
		"stats":      s.coordinator.Stats(),
	})
}

// handleDiagnostics returns a support bundle: the effective bridge
// configuration, the connection counters, and the state snapshot.
// Mirrors what an installer needs to triage a misbehaving board.
func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	wsClients := 0
	if s.hub != nil {
		wsClients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version": s.version,
		"config": map[string]any{
			"host":                s.fpCfg.Host,
			"port":                s.fpCfg.Port,
			"scan_interval_s":     s.fpCfg.ScanInterval,
			"connect_timeout_s":   s.fpCfg.ConnectTimeout,
			"read_timeout_s":      s.fpCfg.ReadTimeout,
			"command_interval_ms": s.fpCfg.CommandInterval,
			"response_timeout_ms": s.fpCfg.ResponseTimeout,
			"queue_size":          s.fpCfg.QueueSize,
			"backoff_base_s":      s.fpCfg.BackoffBase,
			"backoff_max_s":       s.fpCfg.BackoffMax,
			"settle_delay_s":      s.fpCfg.SettleDelay,
		},
		"connection":        s.coordinator.Stats(),
		"state":             stateView(s.coordinator.Snapshot()),
		"websocket_clients": wsClients,
	})
}

// handleProbe opens a throwaway connection to verify bridge
// reachability without disturbing the coordinator's session. Used by
// setup flows before committing an address to the configuration.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	host := req.Host
	if host == "" {
		host = s.fpCfg.Host
	}
	port := req.Port
	if port == 0 {
		port = s.fpCfg.Port
	}
	if port < 1 || port > 65535 {
		writeBadRequest(w, "port must be between 1 and 65535")
		return
	}
	address := fmt.Sprintf("%s:%d", host, port)

	if err := ifc.Probe(r.Context(), address, s.fpCfg.GetProbeTimeout()); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeUnreachable,
			fmt.Sprintf("probe of %s failed: %v", address, err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "reachable",
		"address": address,
	})
}
