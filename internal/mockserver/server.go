// Package mockserver is an in-memory stand-in for the crawler backend, used
// for local development and end-to-end poking of the dashboard. It serves
// the same REST routes and push channel the real backend exposes; the
// "analysis" it produces is canned.
package mockserver

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crawldash/internal/model"
)

type Server struct {
	mu       sync.Mutex
	order    []string
	jobs     map[string]*model.Job
	analyses map[string]model.Analysis

	subs map[*websocket.Conn]struct{}

	// Delay before a requested analysis settles, so status transitions are
	// observable in the dashboard.
	AnalyzeDelay time.Duration

	upgrader websocket.Upgrader
}

func New() *Server {
	return &Server{
		jobs:         make(map[string]*model.Job),
		analyses:     make(map[string]model.Analysis),
		subs:         make(map[*websocket.Conn]struct{}),
		AnalyzeDelay: 2 * time.Second,
		upgrader:     websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Handler wires the REST routes plus the /ws push endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/urls", s.handleAddURL)
	r.Get("/urls", s.handleListURLs)
	r.Post("/urls/{id}/analyze", s.handleAnalyze)
	r.Delete("/urls/{id}", s.handleDelete)
	r.Get("/analyses/{id}", s.handleGetAnalysis)
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleAddURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.NewString(),
		URL:       strings.TrimSpace(body.URL),
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.order = append(s.order, job.ID)
	s.jobs[job.ID] = job
	snapshot := *job
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, snapshot)
}

func (s *Server) handleListURLs(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := (page - 1) * limit
	out := make([]model.Job, 0, limit)
	for i := start; i < len(s.order) && i < start+limit; i++ {
		out = append(out, *s.jobs[s.order[i]])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "unknown url id")
		return
	}
	if err := model.TransitionJobStatus(job, model.StatusProcessing, ""); err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	job.UpdatedAt = time.Now().UTC()
	snapshot := *job
	s.mu.Unlock()

	s.broadcast(eventFor(snapshot))
	go s.settleAnalysis(id)

	writeJSON(w, http.StatusAccepted, snapshot)
}

// settleAnalysis completes a processing job after AnalyzeDelay and pushes
// the resulting status to every subscriber.
func (s *Server) settleAnalysis(id string) {
	time.Sleep(s.AnalyzeDelay)

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if err := model.TransitionJobStatus(job, model.StatusCompleted, ""); err != nil {
		// the job was deleted and re-added, or never made it to processing
		s.mu.Unlock()
		return
	}
	job.Title = "Mock page for " + job.URL
	job.HTMLVersion = "HTML5"
	job.LoginForm = rand.Intn(2) == 0
	job.UpdatedAt = time.Now().UTC()
	s.analyses[id] = cannedAnalysis(*job)
	snapshot := *job
	s.mu.Unlock()

	s.broadcast(eventFor(snapshot))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	if _, ok := s.jobs[id]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "unknown url id")
		return
	}
	delete(s.jobs, id)
	delete(s.analyses, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	analysis, ok := s.analyses[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "no analysis for id")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.subs[conn] = struct{}{}
	s.mu.Unlock()

	// drain inbound frames until the peer goes away
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.subs, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcast(ev model.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.subs {
		_ = conn.WriteJSON(ev)
	}
}

func eventFor(job model.Job) model.StatusEvent {
	return model.StatusEvent{
		ID:          job.ID,
		Status:      job.Status,
		Title:       job.Title,
		HTMLVersion: job.HTMLVersion,
		LoginForm:   job.LoginForm,
		LastError:   job.LastError,
		UpdatedAt:   job.UpdatedAt,
	}
}

func cannedAnalysis(job model.Job) model.Analysis {
	return model.Analysis{
		URL:         job.URL,
		HTMLVersion: job.HTMLVersion,
		Title:       job.Title,
		LoginForm:   job.LoginForm,
		Headings: []model.Heading{
			{Level: "h1", Count: 1},
			{Level: "h2", Count: 3},
			{Level: "h3", Count: 5},
		},
		Links: []model.Link{
			{ID: uuid.NewString(), URL: job.URL + "/about", IsInternal: true, StatusCode: 200},
			{ID: uuid.NewString(), URL: "https://example.org/partner", StatusCode: 200},
			{ID: uuid.NewString(), URL: job.URL + "/old", IsInternal: true, IsInaccessible: true, StatusCode: 404},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
