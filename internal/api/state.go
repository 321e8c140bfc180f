package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NTillmann/davinci-fireplace-ha/internal/bridges/ifc"
	"github.com/NTillmann/davinci-fireplace-ha/internal/fireplace"
)

// PropertyView is the API rendering of one property's state. Percent is
// populated for level properties so UIs need not know the 0-10 scale.
type PropertyView struct {
	Property  string           `json:"property"`
	Kind      string           `json:"kind"`
	Known     bool             `json:"known"`
	Value     *fireplace.Value `json:"value,omitempty"`
	Percent   *int             `json:"percent,omitempty"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
}

// StateView is the API rendering of a full state snapshot.
type StateView struct {
	Version    uint64                  `json:"version"`
	TakenAt    time.Time               `json:"taken_at"`
	Properties map[string]PropertyView `json:"properties"`
}

// SetPropertyRequest is the body of PUT /api/v1/properties/{name}.
//
// Value accepts the natural JSON form per property kind: a boolean (or
// "ON"/"OFF" string), a 0-10 integer, or an RGBW channel object (or the
// "r,g,b,w" string form). Percent is an alternative for level
// properties. Level/Percent on a power property request the paired
// level to be set before the power-on command.
type SetPropertyRequest struct {
	Value   json.RawMessage `json:"value,omitempty"`
	Percent *int            `json:"percent,omitempty"`
	Level   *int            `json:"level,omitempty"`
}

// CommandRequest is the body of POST /api/v1/commands.
type CommandRequest struct {
	Command string `json:"command"`
}

// RefreshRequest is the optional body of POST /api/v1/refresh.
type RefreshRequest struct {
	Properties []string `json:"properties,omitempty"`
}

// handleGetState returns the full device state snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateView(s.coordinator.Snapshot()))
}

// handleGetProperty returns the state of a single property.
func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := fireplace.ParseProperty(chi.URLParam(r, "name"))
	if err != nil {
		writeNotFound(w, "unknown property")
		return
	}

	st, _ := s.coordinator.Snapshot().Get(p)
	writeJSON(w, http.StatusOK, propertyView(p, st))
}

// handleSetProperty translates a typed property write into one or two
// SET commands and waits for the board's acknowledgment.
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := fireplace.ParseProperty(chi.URLParam(r, "name"))
	if err != nil {
		writeNotFound(w, "unknown property")
		return
	}
	if !p.Settable() {
		writeBadRequest(w, fmt.Sprintf("%s is report-only and cannot be set", p.Key()))
		return
	}

	var req SetPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	value, err := decodeSetValue(p, req)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()

	// Level-before-power pairing: a power-on request may carry its
	// target level, which must reach the board before the power flag so
	// the appliance starts at the requested intensity.
	lp, lv, paired, err := pairedLevel(p, value, req)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if paired {
		if err := s.coordinator.Set(ctx, lp, lv); err != nil {
			s.writeCommandError(w, err)
			return
		}
	}

	if err := s.coordinator.Set(ctx, p, value); err != nil {
		s.writeCommandError(w, err)
		return
	}

	// Reconcile the store with what the board actually applied.
	//nolint:errcheck // Best-effort refresh; the periodic sweep covers misses
	s.coordinator.RefreshProperty(p)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"property": p.Key(),
		"value":    value,
	})
}

// handleSendCommand passes a raw command line through to the board.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeBadRequest(w, "command is required")
		return
	}

	if err := s.coordinator.SendCommand(r.Context(), req.Command); err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"command": strings.TrimSpace(req.Command),
	})
}

// handleRefresh schedules a refresh of all properties, or of the listed
// subset. The GETs run asynchronously; the response only acknowledges
// the scheduling.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if len(req.Properties) == 0 {
		s.coordinator.RefreshAll()
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "scope": "all"})
		return
	}

	props := make([]fireplace.Property, 0, len(req.Properties))
	for _, name := range req.Properties {
		p, err := fireplace.ParseProperty(name)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("unknown property %q", name))
			return
		}
		props = append(props, p)
	}

	keys := make([]string, 0, len(props))
	for _, p := range props {
		if err := s.coordinator.RefreshProperty(p); err != nil {
			s.writeCommandError(w, err)
			return
		}
		keys = append(keys, p.Key())
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "properties": keys})
}

// writeCommandError maps coordinator and domain errors onto HTTP status
// codes and structured error bodies.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ifc.ErrInvalidCommand),
		errors.Is(err, fireplace.ErrUnknownProperty),
		errors.Is(err, fireplace.ErrMalformedValue),
		errors.Is(err, fireplace.ErrValueOutOfRange),
		errors.Is(err, fireplace.ErrWrongKind),
		errors.Is(err, fireplace.ErrNotSettable):
		writeBadRequest(w, err.Error())

	case errors.Is(err, ifc.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, ErrCodeQueueFull, err.Error())

	case errors.Is(err, ifc.ErrCommandTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())

	case errors.Is(err, ifc.ErrCommandRejected):
		writeError(w, http.StatusBadGateway, ErrCodeRejected, err.Error())

	case errors.Is(err, ifc.ErrNotConnected),
		errors.Is(err, ifc.ErrConnectionLost),
		errors.Is(err, ifc.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConnected, err.Error())

	default:
		s.logger.Error("command failed", "error", err)
		writeInternalError(w, "command failed")
	}
}

// decodeSetValue builds the typed value for a property write.
func decodeSetValue(p fireplace.Property, req SetPropertyRequest) (fireplace.Value, error) {
	if p.Kind() == fireplace.KindLevel && req.Percent != nil {
		return fireplace.NewLevel(fireplace.PercentToLevel(*req.Percent)), nil
	}

	if len(req.Value) == 0 {
		return fireplace.Value{}, fmt.Errorf("value is required")
	}

	if p.Kind() == fireplace.KindBool {
		var b bool
		if err := json.Unmarshal(req.Value, &b); err == nil {
			return fireplace.NewBool(b), nil
		}
	}

	// Channel objects are normalised through the comma grammar so the
	// domain's range checks apply.
	if p.Kind() == fireplace.KindColor && bytes.HasPrefix(bytes.TrimSpace(req.Value), []byte("{")) {
		var c fireplace.Color
		if err := json.Unmarshal(req.Value, &c); err != nil {
			return fireplace.Value{}, fmt.Errorf("invalid color object: %w", err)
		}
		return fireplace.ParseSetValue(p, fmt.Sprintf("%d,%d,%d,%d", c.Red, c.Green, c.Blue, c.White))
	}

	var token string
	if err := json.Unmarshal(req.Value, &token); err != nil {
		token = strings.TrimSpace(string(req.Value))
	}
	return fireplace.ParseSetValue(p, token)
}

// pairedLevel resolves the level command to send before a power-on
// write, if the request asked for one.
func pairedLevel(p fireplace.Property, v fireplace.Value, req SetPropertyRequest) (fireplace.Property, fireplace.Value, bool, error) {
	if p.Kind() != fireplace.KindBool || !v.Bool() {
		return "", fireplace.Value{}, false, nil
	}

	var lp fireplace.Property
	switch p {
	case fireplace.Lamp:
		lp = fireplace.LampLevel
	case fireplace.HeatFan:
		lp = fireplace.HeatFanSpeed
	default:
		return "", fireplace.Value{}, false, nil
	}

	switch {
	case req.Level != nil:
		lv, err := fireplace.ParseSetValue(lp, strconv.Itoa(*req.Level))
		if err != nil {
			return "", fireplace.Value{}, false, err
		}
		return lp, lv, true, nil
	case req.Percent != nil:
		return lp, fireplace.NewLevel(fireplace.PercentToLevel(*req.Percent)), true, nil
	}
	return "", fireplace.Value{}, false, nil
}

// stateView converts a snapshot for API and WebSocket payloads.
func stateView(snap fireplace.Snapshot) StateView {
	props := make(map[string]PropertyView, len(snap.Properties))
	for p, st := range snap.Properties {
		props[p.Key()] = propertyView(p, st)
	}
	return StateView{
		Version:    snap.Version,
		TakenAt:    snap.TakenAt,
		Properties: props,
	}
}

// propertyView converts one property's state for API payloads.
func propertyView(p fireplace.Property, st fireplace.PropertyState) PropertyView {
	view := PropertyView{
		Property: p.Key(),
		Kind:     p.Kind().String(),
		Known:    st.Known,
	}
	if !st.Known {
		return view
	}

	value := st.Value
	updatedAt := st.UpdatedAt
	view.Value = &value
	view.UpdatedAt = &updatedAt

	if value.Kind() == fireplace.KindLevel {
		pct := fireplace.LevelToPercent(value.Level())
		view.Percent = &pct
	}
	return view
}

// changeView is the WebSocket rendering of one property change.
type changeView struct {
	Property string          `json:"property"`
	Value    fireplace.Value `json:"value"`
	Source   string          `json:"source"`
	At       time.Time       `json:"at"`
}

// stateEvent builds the WebSocket payload for a change batch.
func stateEvent(snap fireplace.Snapshot, changes []fireplace.Change) map[string]any {
	views := make([]changeView, 0, len(changes))
	for _, ch := range changes {
		views = append(views, changeView{
			Property: ch.Property.Key(),
			Value:    ch.Value,
			Source:   string(ch.Source),
			At:       ch.At,
		})
	}
	return map[string]any{
		"changes": views,
		"state":   stateView(snap),
	}
}
