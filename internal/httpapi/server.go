package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pixil98/ubichill/internal/auth"
	"github.com/pixil98/ubichill/internal/instance"
	"github.com/pixil98/ubichill/internal/journal"
)

// Counter reports a live count, e.g. open connections.
type Counter interface {
	Count() int
}

// Journal takes facts without blocking.
type Journal interface {
	Record(f journal.Fact) bool
}

// Server is the HTTP surface around the sync server: health, metrics, the
// websocket endpoint and instance management.
type Server struct {
	instances *instance.Manager
	verifier  auth.Verifier
	renderer  *instance.ConnectionRenderer

	cookieName  string
	connections Counter
	ws          http.Handler
	metrics     http.Handler
	journal     Journal
	history     journal.Reader
	origins     []string
	limiter     *ipLimiter
	startTime   time.Time
	now         func() time.Time
}

func NewServer(instances *instance.Manager, verifier auth.Verifier, renderer *instance.ConnectionRenderer, opts ...ServerOpt) *Server {
	s := &Server{
		instances: instances,
		verifier:  verifier,
		renderer:  renderer,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.startTime = s.now()

	return s
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	if s.ws != nil {
		r.Handle("/ws", s.ws).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.middleware)
	}
	api.HandleFunc("/worlds", s.handleWorlds).Methods(http.MethodGet)
	api.HandleFunc("/worlds/{id}", s.handleGetWorld).Methods(http.MethodGet)
	api.HandleFunc("/instances", s.handleListInstances).Methods(http.MethodGet)
	api.HandleFunc("/instances", s.handleCreateInstance).Methods(http.MethodPost)
	api.HandleFunc("/instances/{id}", s.handleGetInstance).Methods(http.MethodGet)
	api.HandleFunc("/instances/{id}", s.handleDeleteInstance).Methods(http.MethodDelete)
	if s.history != nil {
		api.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)
	}

	return cors(s.origins, r)
}

func jsonResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, statusCode int, message string) {
	jsonResponse(w, statusCode, map[string]string{"error": message})
}
