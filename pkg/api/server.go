package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sitewright/cloudcode/pkg/hooks"
)

// Server represents our API server
type Server struct {
	router *mux.Router
	hooks  *hooks.Service
	logger *logrus.Logger
}

// NewServer creates a new API server
func NewServer(hookService *hooks.Service, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		hooks:  hookService,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(RequestLogger(s.logger))

	// Trigger routes, called by the data layer around entity mutations
	s.router.HandleFunc("/1/hooks/{class}/{trigger}", s.handleTrigger).Methods("POST")

	// Cloud functions
	s.router.HandleFunc("/1/functions/deleteContentItem", s.deleteContentItem).Methods("POST")
	s.router.HandleFunc("/1/functions/getSiteNameId", s.getSiteNameID).Methods("POST")

	s.router.HandleFunc("/healthz", s.health).Methods("GET")
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
