package server

import (
	"encoding/json"
	"net/http"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	FacilityID         int               `json:"facility_id"`
	Driver             string            `json:"driver"`
	Simulated          bool              `json:"simulated"`
	TransportConnected bool              `json:"transport_connected"`
	Version            string            `json:"version,omitempty"`
	Cycle              model.CycleStatus `json:"cycle"`
}

// TriggerRequest is the body of POST /v1/triggers. An absent facility_id
// means the local facility; any value given, 0 included, goes to the gate's
// facility filter as is.
type TriggerRequest struct {
	Action     string `json:"action"`
	FacilityID *int   `json:"facility_id"`
}

// TriggerResponse reports what the gate did with a local trigger.
type TriggerResponse struct {
	Action   model.Action `json:"action"`
	Decision string       `json:"decision"`
	Accepted bool         `json:"accepted"`
}

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/machine", s.handleMachine)
	mux.HandleFunc("POST /v1/triggers", s.handleTrigger)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	return s.accessLog(AuthMiddleware(authToken, mux))
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		FacilityID:         s.opts.Machine.FacilityID,
		Driver:             s.opts.DriverName,
		Simulated:          s.opts.Simulated,
		TransportConnected: s.TransportConnected(),
		Version:            s.opts.Version,
	}
	if s.opts.Status != nil {
		resp.Cycle = s.opts.Status.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMachine handles GET /v1/machine.
func (s *Server) handleMachine(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Machine)
}

// handleTrigger handles POST /v1/triggers. The trigger goes through the same
// gate as transport events: 202 when accepted, 200 with the drop reason
// otherwise.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	action, err := model.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.Gate == nil {
		writeError(w, http.StatusServiceUnavailable, "gate not running")
		return
	}

	ev := model.TriggerEvent{FacilityID: s.opts.Machine.FacilityID, Action: action}
	if req.FacilityID != nil {
		ev.FacilityID = *req.FacilityID
	}

	d := s.opts.Gate.OnTrigger(ev)
	status := http.StatusAccepted
	if !d.Accepted() {
		status = http.StatusOK
	}
	writeJSON(w, status, TriggerResponse{Action: action, Decision: string(d), Accepted: d.Accepted()})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
