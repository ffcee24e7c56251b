package engine

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nexiath/sovera/pkg/logger"
)

// Server hosts the HTTP API.
type Server struct {
	engine *Engine
	logger *logger.Logger
	http   *http.Server
}

// NewServer builds the server with its route table.
func NewServer(engine *Engine, port int) *Server {
	s := &Server{
		engine: engine,
		logger: engine.logger,
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Router assembles the route table. Exposed for handler tests.
func (s *Server) Router() *mux.Router {
	e := s.engine

	root := mux.NewRouter()
	root.Use(s.corsMiddleware)
	root.Use(s.loggingMiddleware)

	root.HandleFunc("/health", e.handleHealth).Methods(http.MethodGet)

	api := root.PathPrefix("/api/v1").Subrouter()
	api.Use(e.auth.Middleware)

	api.HandleFunc("/projects", e.handleCreateProject).Methods(http.MethodPost)
	api.HandleFunc("/projects", e.handleListProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/by-slug/{slug}", e.handleGetProjectBySlug).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", e.handleGetProject).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", e.handleUpdateProject).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}", e.handleDeleteProject).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{id}/provisioning", e.handleProvisioningStatus).Methods(http.MethodGet)

	api.HandleFunc("/projects/{id}/members", e.handleInviteMember).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/members", e.handleListMembers).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/members/{userID}", e.handleUpdateMemberRole).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}/members/{userID}", e.handleRemoveMember).Methods(http.MethodDelete)
	api.HandleFunc("/invitations", e.handleListInvitations).Methods(http.MethodGet)
	api.HandleFunc("/invitations/{id}/respond", e.handleRespondInvitation).Methods(http.MethodPost)

	api.HandleFunc("/projects/{id}/tables", e.handleCreateTable).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/tables", e.handleListTables).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/tables/{table}", e.handleGetTable).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/tables/{table}", e.handleDropTable).Methods(http.MethodDelete)

	api.HandleFunc("/projects/{id}/tables/{table}/rows", e.handleInsertRow).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/tables/{table}/rows", e.handleListRows).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/tables/{table}/rows/{rowID}", e.handleGetRow).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/tables/{table}/rows/{rowID}", e.handleUpdateRow).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}/tables/{table}/rows/{rowID}", e.handleDeleteRow).Methods(http.MethodDelete)

	// Websocket routes authenticate inside the handler so rejections can use
	// websocket close codes instead of HTTP statuses.
	root.HandleFunc("/ws/projects/{id}/tables/{table}", e.handleSubscribe).Methods(http.MethodGet)
	root.HandleFunc("/ws/stats", e.handleWSStats).Methods(http.MethodGet)

	return root
}

// Start begins serving. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades hijack the connection; wrapping the writer
		// would break the upgrade handshake.
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.WithFields(map[string]string{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   strconv.Itoa(recorder.status),
			"duration": time.Since(start).String(),
		}).Info(fmt.Sprintf("%s %s %d", r.Method, r.URL.Path, recorder.status))
	})
}
