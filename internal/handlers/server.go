package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anidl/internal/utils"
)

type Server struct {
	port       int
	logger     *utils.Logger
	httpServer *http.Server
	apiHandler *APIHandler
	gatherer   prometheus.Gatherer
}

func NewServer(port int, api *APIHandler, gatherer prometheus.Gatherer, logger *utils.Logger) *Server {
	return &Server{
		port:       port,
		logger:     logger,
		apiHandler: api,
		gatherer:   gatherer,
	}
}

// Router wires every route. It is separate from Start so tests can mount it
// on httptest.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.apiHandler.Health).Methods("GET")
	api.HandleFunc("/status", s.apiHandler.GetStatus).Methods("GET")
	api.HandleFunc("/series", s.apiHandler.GetSeries).Methods("GET")
	api.HandleFunc("/series/{name}/history", s.apiHandler.GetSeriesHistory).Methods("GET")
	api.HandleFunc("/runs", s.apiHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs", s.apiHandler.TriggerRun).Methods("POST")
	api.HandleFunc("/runs/cancel", s.apiHandler.CancelRun).Methods("POST")
	api.HandleFunc("/runs/{id}", s.apiHandler.GetRun).Methods("GET")
	api.HandleFunc("/events", s.apiHandler.StreamEvents).Methods("GET")

	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("Starting server on port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
