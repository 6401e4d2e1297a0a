// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package httpapi serves the subscriber's status over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tempmesh/tempmesh/aggregate"
	"github.com/tempmesh/tempmesh/internal/log"
)

type (
	// Status is a point-in-time view of the subscriber.
	Status struct {
		Mean    float32
		OK      bool
		Now     uint64
		Cycles  uint64
		Evicted []int32
		Records []aggregate.Record
	}

	// StatusSource provides the status to serve.
	StatusSource interface {
		Status() Status
	}

	// Server is the status HTTP server.
	Server struct {
		source StatusSource
		router *mux.Router
		server *http.Server
		log    log.Logger
	}

	averageResponse struct {
		Temperature float32 `json:"temperature"`
		Publishers  int     `json:"publishers"`
		Time        uint64  `json:"time"`
	}

	publisherResponse struct {
		PublisherID int32   `json:"publisher_id"`
		Temperature float32 `json:"temperature"`
		Time        uint64  `json:"time"`
		Age         uint64  `json:"age"`
	}

	healthResponse struct {
		Status string `json:"status"`
		Cycles uint64 `json:"cycles"`
	}
)

// New creates a server for the source. Metrics are served from gatherer when
// it is not nil.
func New(
	source StatusSource,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	s := &Server{source: source, log: log.Wrap(logger)}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/average", s.average).Methods(http.MethodGet)
	r.HandleFunc("/publishers", s.publishers).Methods(http.MethodGet)
	r.HandleFunc("/publishers/{id:-?[0-9]+}", s.publisher).
		Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(
			gatherer, promhttp.HandlerOpts{},
		)).Methods(http.MethodGet)
	}
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(
		handlers.PrintRecoveryStack(false),
	)(s.router)
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(
			context.Background(), 5*time.Second,
		)
		defer cancel()
		_ = s.server.Shutdown(shutdown)
	}()

	s.log.Info(ctx, "http api listening",
		slog.String("address", l.Addr().String()))
	err = s.server.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	st := s.source.Status()
	if st.Cycles == 0 {
		s.write(w, http.StatusServiceUnavailable, healthResponse{"starting", 0})
		return
	}
	s.write(w, http.StatusOK, healthResponse{"ok", st.Cycles})
}

func (s *Server) average(w http.ResponseWriter, _ *http.Request) {
	st := s.source.Status()
	if !st.OK {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.write(w, http.StatusOK, averageResponse{
		Temperature: st.Mean,
		Publishers:  len(st.Records),
		Time:        st.Now,
	})
}

func (s *Server) publishers(w http.ResponseWriter, _ *http.Request) {
	st := s.source.Status()
	out := make([]publisherResponse, 0, len(st.Records))
	for _, r := range st.Records {
		out = append(out, toPublisher(r, st.Now))
	}
	s.write(w, http.StatusOK, out)
}

func (s *Server) publisher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st := s.source.Status()
	for _, rec := range st.Records {
		if rec.PublisherID == int32(id) {
			s.write(w, http.StatusOK, toPublisher(rec, st.Now))
			return
		}
	}
	http.NotFound(w, r)
}

func toPublisher(r aggregate.Record, now uint64) publisherResponse {
	return publisherResponse{
		PublisherID: r.PublisherID,
		Temperature: r.Temperature,
		Time:        r.Time,
		Age:         aggregate.Age(now, r.Time),
	}
}

func (s *Server) write(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn(context.Background(), err)
	}
}
