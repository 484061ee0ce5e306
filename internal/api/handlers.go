package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleHealth returns basic health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statsResponse is the dashboard summary payload.
type statsResponse struct {
	ActiveCalls     int            `json:"active_calls"`
	CallsByStatus   map[string]int `json:"calls_by_status"`
	CallsToday      int            `json:"calls_today"`
	AgentsAvailable int            `json:"agents_available"`
}

// handleStats returns aggregate counters for the dashboard.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	byStatus, err := s.calls.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("stats: failed to count calls by status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	today, err := s.calls.CountSince(ctx, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		s.logger.Error("stats: failed to count calls today", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	available, err := s.agents.CountByStatus(ctx, "available")
	if err != nil {
		s.logger.Error("stats: failed to count available agents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		ActiveCalls:     s.registry.ActiveCount(),
		CallsByStatus:   byStatus,
		CallsToday:      today,
		AgentsAvailable: available,
	})
}

// handleListCalls returns recent call history. Query params: limit.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	logs, err := s.calls.ListRecent(r.Context(), pg.Limit)
	if err != nil {
		s.logger.Error("list calls: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  logs,
		Total:  len(logs),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetCall returns a single call log by call identifier.
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	log, err := s.calls.GetByCallID(r.Context(), callID)
	if err != nil {
		s.logger.Error("get call: failed to query", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if log == nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	writeJSON(w, http.StatusOK, log)
}

// activeCallResponse is a snapshot of one in-progress call.
type activeCallResponse struct {
	CallID    string    `json:"call_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	State     string    `json:"state"`
	RoomName  string    `json:"room_name,omitempty"`
	Menu      string    `json:"menu,omitempty"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration"`
}

// handleActiveCalls returns a snapshot of all in-progress calls.
func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.ActiveSessions()
	now := time.Now()

	items := make([]activeCallResponse, len(sessions))
	for i, sess := range sessions {
		v := sess.View()
		items[i] = activeCallResponse{
			CallID:    v.CallID,
			From:      v.From,
			To:        v.To,
			State:     string(v.State),
			RoomName:  v.RoomName,
			Menu:      v.Menu,
			StartTime: v.StartTime,
			Duration:  int64(now.Sub(v.StartTime).Seconds()),
		}
	}

	writeJSON(w, http.StatusOK, items)
}

// handleHangup terminates an active call from the admin side.
func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	sess, ok := s.registry.Get(callID)
	if !ok {
		writeError(w, http.StatusNotFound, "no active call with that id")
		return
	}

	s.logger.Info("admin hangup requested", "call_id", callID)
	s.engine.Teardown(sess, "completed")

	writeJSON(w, http.StatusOK, map[string]string{"call_id": callID, "result": "terminated"})
}

// handleListMenus returns all configured IVR menus.
func (s *Server) handleListMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := s.menus.ListMenus(r.Context())
	if err != nil {
		s.logger.Error("list menus: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, menus)
}

// handleListAgents returns the transfer-destination directory.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.List(r.Context())
	if err != nil {
		s.logger.Error("list agents: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, agents)
}

// setAgentStatusRequest is the body of PUT /agents/{extension}/status.
type setAgentStatusRequest struct {
	Status string `json:"status"`
}

// handleSetAgentStatus updates an agent's availability.
func (s *Server) handleSetAgentStatus(w http.ResponseWriter, r *http.Request) {
	extension := chi.URLParam(r, "extension")
	if msg := validateExtensionNumber("extension", extension); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var req setAgentStatusRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validateAgentStatus("status", req.Status); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	agent, err := s.agents.GetByExtension(ctx, extension)
	if err != nil {
		s.logger.Error("set agent status: failed to query", "extension", extension, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	if err := s.agents.SetStatus(ctx, extension, req.Status); err != nil {
		s.logger.Error("set agent status: failed to update", "extension", extension, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	agent.Status = req.Status
	writeJSON(w, http.StatusOK, agent)
}
