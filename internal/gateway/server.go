package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/droidforge/forge/internal/audit"
	"github.com/droidforge/forge/internal/events"
	"github.com/droidforge/forge/internal/lockfile"
	"github.com/droidforge/forge/internal/taskdoc"
)

// Server is the Forge gateway HTTP server. It exposes read-only
// observability endpoints over the orchestrator's state.
type Server struct {
	httpServer *http.Server
	bus        *events.Bus
	locks      *lockfile.Manager
	documents  []string
	auditPath  string
	host       string
	port       int
}

// NewServer creates a new gateway server.
func NewServer(bus *events.Bus, locks *lockfile.Manager, documents []string, auditPath, host string, port int) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		bus:       bus,
		locks:     locks,
		documents: documents,
		auditPath: auditPath,
		host:      host,
		port:      port,
	}

	// Routes
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/documents", s.handleDocuments)
	r.Get("/api/locks", s.handleLocks)
	r.Get("/api/audit/report", s.handleAuditReport)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("Forge gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit := 50
	if limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}

	history := s.bus.History(limit)

	w.Header().Set("Content-Type", "application/json")

	// Format timestamps nicely
	type eventJSON struct {
		ID        string             `json:"id"`
		RunID     string             `json:"run_id,omitempty"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:        e.ID,
			RunID:     e.RunID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}

	json.NewEncoder(w).Encode(result)
}

// documentStatus is the per-document summary returned by /api/documents.
type documentStatus struct {
	Path       string         `json:"path"`
	Tasks      int            `json:"tasks"`
	ByStatus   map[string]int `json:"by_status"`
	ParseError string         `json:"parse_error,omitempty"`
	Missing    bool           `json:"missing,omitempty"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	result := make([]documentStatus, 0, len(s.documents))
	for _, path := range s.documents {
		ds := documentStatus{Path: path, ByStatus: map[string]int{}}

		data, err := os.ReadFile(path)
		if err != nil {
			ds.Missing = true
			result = append(result, ds)
			continue
		}

		doc, err := taskdoc.Parse(string(data))
		if err != nil {
			ds.ParseError = err.Error()
			result = append(result, ds)
			continue
		}

		counts := doc.CountByStatus()
		for status, n := range counts {
			ds.ByStatus[status.String()] = n
			ds.Tasks += n
		}
		result = append(result, ds)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// lockStatus describes one document's sentinel marker.
type lockStatus struct {
	Resource   string `json:"resource"`
	Locked     bool   `json:"locked"`
	HolderID   string `json:"holder_id,omitempty"`
	AcquiredAt string `json:"acquired_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	result := make([]lockStatus, 0, len(s.documents))
	for _, path := range s.documents {
		ls := lockStatus{Resource: path}
		if info, err := s.locks.Inspect(path); err == nil && info != nil {
			ls.Locked = true
			ls.HolderID = info.HolderID
			ls.AcquiredAt = info.AcquiredAt.Format(time.RFC3339)
			ls.ExpiresAt = info.ExpiresAt.Format(time.RFC3339)
		}
		result = append(result, ls)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleAuditReport(w http.ResponseWriter, r *http.Request) {
	records, err := audit.ReadLog(s.auditPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	report := audit.BuildReport(records)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
