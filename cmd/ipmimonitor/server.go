package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"ipmicore/internal/eventlog"
	"ipmicore/mc"
)

// server exposes one BMC's discovered topology and live event stream over
// HTTP, the same role the teacher's server.Server plays for SOL sessions.
type server struct {
	port       int
	version    string
	bmc        *mc.BMC
	eventLog   *eventlog.Writer
	hub        *hub
	router     *mux.Router
	httpServer *http.Server
}

func newServer(port int, version string, b *mc.BMC, ev *eventlog.Writer, h *hub) *server {
	s := &server{
		port:     port,
		version:  version,
		bmc:      b,
		eventLog: ev,
		hub:      h,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/topology", s.handleTopology).Methods("GET")
	api.HandleFunc("/mcs/{addr}/events", s.handleMCEventLog).Methods("GET")
	api.HandleFunc("/events/stream", s.handleEventStream).Methods("GET")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Infof("ipmimonitor: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (s *server) Run(ctx context.Context) error {
	s.router.Use(loggingMiddleware)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		log.Info("ipmimonitor: context done, shutting down HTTP server")
		s.httpServer.Shutdown(context.Background())
	}()

	log.Infof("ipmimonitor: serving topology on port %d", s.port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
