// internal/server/server.go

// Package server exposes the graph over HTTP: event ingestion, fork
// management, and a websocket feed of stored events.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/user/forkgraph/internal/event"
	"github.com/user/forkgraph/internal/graph"
	"github.com/user/forkgraph/internal/ingest"
	"github.com/user/forkgraph/internal/types"
)

// Server is the HTTP handler for the observability API. The store is not safe
// for concurrent writers, so a single RWMutex guards every store call:
// writers take the write lock, queries the read lock.
type Server struct {
	store *graph.Store
	ing   *ingest.Ingestor
	hub   *Hub
	mux   *http.ServeMux
	mu    sync.RWMutex
}

// NewServer wires the API around a store. Stored events are broadcast to
// websocket subscribers.
func NewServer(store *graph.Store) *Server {
	s := &Server{
		store: store,
		hub:   NewHub(),
		mux:   http.NewServeMux(),
	}
	s.ing = &ingest.Ingestor{
		Sink: store,
		OnStored: func(rec *event.Record, id graph.EntityID) {
			s.hub.Broadcast(eventBroadcast{Type: "event", EntityID: uint64(id), Event: rec})
		},
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/events", s.handleIngestEvents)
	s.mux.HandleFunc("GET /api/events", s.handleQueryEvents)
	s.mux.HandleFunc("POST /api/forks", s.handleCreateFork)
	s.mux.HandleFunc("GET /api/forks", s.handleListForks)
	s.mux.HandleFunc("GET /api/forks/{id}", s.handleGetFork)
	s.mux.HandleFunc("PATCH /api/forks/{id}", s.handleUpdateFork)
	s.mux.HandleFunc("POST /api/forks/read", s.handleMarkAllRead)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Hub returns the websocket broadcast hub, so other components (the fork
// service, the sweeper) can publish updates too.
func (s *Server) Hub() *Hub { return s.hub }

// WriteLocker exposes the store write lock so background writers (the
// sweeper) serialize against API writers.
func (s *Server) WriteLocker() sync.Locker { return &s.mu }

// Close drops all websocket clients.
func (s *Server) Close() { s.hub.Close() }

// eventBroadcast is the websocket frame sent for each stored event.
type eventBroadcast struct {
	Type     string        `json:"type"`
	EntityID uint64        `json:"entity_id"`
	Event    *event.Record `json:"event"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestRequest is the JSON body for POST /api/events.
type ingestRequest struct {
	ForkID types.ForkID      `json:"fork_id"`
	Events []json.RawMessage `json:"events"`
}

func (s *Server) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	var res ingest.Result
	for _, raw := range req.Events {
		lr := s.ing.Line(string(raw), req.ForkID)
		res.Stored += lr.Stored
		res.Errors += lr.Errors
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, res)
}

// eventView flattens an event entity for the query API.
type eventView struct {
	ID              uint64          `json:"id"`
	ForkID          string          `json:"fork_id,omitempty"`
	UUID            string          `json:"uuid,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`
	EventType       string          `json:"event_type"`
	Subtype         string          `json:"subtype,omitempty"`
	Text            string          `json:"text,omitempty"`
	Thinking        string          `json:"thinking,omitempty"`
	Result          string          `json:"result,omitempty"`
	Model           string          `json:"model,omitempty"`
	MessageID       string          `json:"message_id,omitempty"`
	Role            string          `json:"role,omitempty"`
	ToolUses        json.RawMessage `json:"tool_uses,omitempty"`
	ToolResults     json.RawMessage `json:"tool_results,omitempty"`
	CostUSD         float64         `json:"cost_usd,omitempty"`
	TotalCostUSD    float64         `json:"total_cost_usd,omitempty"`
	DurationMS      int64           `json:"duration_ms,omitempty"`
	NumTurns        int64           `json:"num_turns,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

func entityToEventView(e *graph.Entity) eventView {
	v := eventView{
		ID:              uint64(e.ID),
		ForkID:          e.GetString("fork_id"),
		UUID:            e.GetString("uuid"),
		SessionID:       e.GetString("session_id"),
		ParentToolUseID: e.GetString("parent_tool_use_id"),
		EventType:       e.GetString("type"),
		Subtype:         e.GetString("subtype"),
		Text:            e.GetString("text"),
		Thinking:        e.GetString("thinking"),
		Result:          e.GetString("result"),
		Model:           e.GetString("model"),
		MessageID:       e.GetString("message_id"),
		Role:            e.GetString("role"),
		CostUSD:         e.GetFloat("cost_usd"),
		TotalCostUSD:    e.GetFloat("total_cost_usd"),
		DurationMS:      e.GetInt("duration_ms"),
		NumTurns:        e.GetInt("num_turns"),
	}
	if v.EventType == "" {
		v.EventType = "unknown"
	}
	if blob := e.GetString("tool_uses"); blob != "" {
		v.ToolUses = json.RawMessage(blob)
	}
	if blob := e.GetString("tool_results"); blob != "" {
		v.ToolResults = json.RawMessage(blob)
	}
	if raw := e.GetString("raw"); raw != "" {
		v.Raw = json.RawMessage(raw)
	}
	return v
}

func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	s.mu.RLock()
	events, err := s.store.QueryEvents(q.Get("session"), types.ForkID(q.Get("fork")), limit)
	s.mu.RUnlock()
	if err != nil {
		slog.Error("query events failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, entityToEventView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

// createForkRequest is the JSON body for POST /api/forks.
type createForkRequest struct {
	ForkID          types.ForkID    `json:"fork_id"`
	ParentSessionID types.SessionID `json:"parent_session_id"`
	Name            string          `json:"name"`
	JobDescription  string          `json:"job_description"`
}

func (s *Server) handleCreateFork(w http.ResponseWriter, r *http.Request) {
	var req createForkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ForkID == "" {
		req.ForkID = types.NewForkID()
	}

	fork := types.NewFork(req.ForkID, req.ParentSessionID)
	fork.Name = req.Name

	s.mu.Lock()
	defer s.mu.Unlock()
	forkEntity, err := s.store.CreateFork(fork)
	if err != nil {
		slog.Error("create fork failed", "fork_id", req.ForkID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if req.JobDescription != "" {
		job := types.NewJob(types.NewJobID(), fork.ID, req.JobDescription)
		if _, err := s.store.CreateJob(job, forkEntity); err != nil {
			slog.Error("create job failed", "fork_id", req.ForkID, "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"fork_id": fork.ID, "success": true})
}

// forkSummary is the listing shape for forks.
type forkSummary struct {
	ForkID          string `json:"fork_id"`
	Name            string `json:"name,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	Status          string `json:"status"`
	Read            bool   `json:"read"`
	EventCount      int    `json:"event_count"`
	CreatedAt       string `json:"created_at,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

func (s *Server) forkToSummary(e *graph.Entity) forkSummary {
	forkID := e.GetString("fork_id")
	count, err := s.store.CountEventsForFork(types.ForkID(forkID))
	if err != nil {
		slog.Warn("count events failed", "fork_id", forkID, "error", err)
	}
	status := e.GetString("status")
	if status == "" {
		status = string(types.ForkRunning)
	}
	return forkSummary{
		ForkID:          forkID,
		Name:            e.GetString("name"),
		SessionID:       e.GetString("session_id"),
		ParentSessionID: e.GetString("parent_session_id"),
		Status:          status,
		Read:            e.GetBool("read"),
		EventCount:      count,
		CreatedAt:       e.GetString("created_at"),
		CompletedAt:     e.GetString("completed_at"),
	}
}

func (s *Server) handleListForks(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	forks, err := s.store.ListForks()
	if err != nil {
		slog.Error("list forks failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	summaries := make([]forkSummary, 0, len(forks))
	for _, e := range forks {
		summaries = append(summaries, s.forkToSummary(e))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetFork(w http.ResponseWriter, r *http.Request) {
	forkID := types.ForkID(r.PathValue("id"))

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.store.GetFork(forkID)
	if err != nil {
		slog.Error("get fork failed", "fork_id", forkID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if e == nil {
		http.Error(w, `{"error":"fork not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.forkToSummary(e))
}

// updateForkRequest is the JSON body for PATCH /api/forks/{id}.
type updateForkRequest struct {
	Status    string          `json:"status"`
	SessionID types.SessionID `json:"session_id"`
	Read      *bool           `json:"read"`
}

func (s *Server) handleUpdateFork(w http.ResponseWriter, r *http.Request) {
	forkID := types.ForkID(r.PathValue("id"))

	var req updateForkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.store.GetFork(forkID)
	if err != nil {
		slog.Error("get fork failed", "fork_id", forkID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if e == nil {
		http.Error(w, `{"error":"fork not found"}`, http.StatusNotFound)
		return
	}

	if req.Status != "" {
		status, ok := types.ParseForkStatus(req.Status)
		if !ok {
			http.Error(w, `{"error":"unknown status"}`, http.StatusBadRequest)
			return
		}
		if err := s.store.UpdateForkStatus(forkID, status, req.SessionID); err != nil {
			slog.Error("update fork failed", "fork_id", forkID, "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
	}
	if req.Read != nil && *req.Read {
		if err := s.store.MarkForkRead(forkID); err != nil {
			slog.Error("mark fork read failed", "fork_id", forkID, "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.store.MarkAllForksRead()
	if err != nil {
		slog.Error("mark all read failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

var upgrader = websocket.Upgrader{
	// The dashboard is served from localhost; origin checks add nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.add(conn)
	defer func() {
		s.hub.remove(conn)
		conn.Close()
	}()

	// Clients only listen; the read loop just detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
