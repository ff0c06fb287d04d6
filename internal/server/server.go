// Package server exposes the HTTP surface: health, metrics, the provider
// webhook endpoints, and the dispatch API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/internal/dispatch"
	"github.com/courierhub/dispatch/internal/reconcile"
	"github.com/courierhub/dispatch/internal/store"
	"github.com/courierhub/dispatch/pkg/courier"
)

// maxWebhookBody caps inbound webhook payloads.
const maxWebhookBody = 1 << 20

// Config holds server configuration.
type Config struct {
	Port int
}

// Server is the HTTP server for the dispatch service.
type Server struct {
	port       int
	dispatcher *dispatch.Service
	reconciler *reconcile.Reconciler
	jobs       store.JobStore
	logger     *otelzap.Logger
}

// New creates a new server instance.
func New(cfg Config, dispatcher *dispatch.Service, reconciler *reconcile.Reconciler,
	jobs store.JobStore, logger *otelzap.Logger) *Server {
	return &Server{
		port:       cfg.Port,
		dispatcher: dispatcher,
		reconciler: reconciler,
		jobs:       jobs,
		logger:     logger,
	}
}

// Handler builds the route table. Exposed separately from Run for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /webhooks/{provider}", s.handleWebhook)

	mux.HandleFunc("POST /api/quotes", s.handleQuotes)
	mux.HandleFunc("POST /api/jobs", s.handleDispatch)
	mux.HandleFunc("POST /api/batches", s.handleBatch)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancel)

	return mux
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// webhookAck is the acknowledgment providers receive. Recoverable business
// conditions are acknowledged success-shaped so providers stop redelivering.
type webhookAck struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookAck{Status: "unreadable_body"})
		return
	}

	outcome, err := s.reconciler.HandleWebhook(r.Context(), &courier.InboundWebhook{
		Provider: provider,
		Header:   r.Header,
		Query:    r.URL.Query(),
		Body:     body,
	})
	if err != nil {
		switch {
		case errors.Is(err, courier.ErrWebhookAuth):
			writeJSON(w, http.StatusUnauthorized, webhookAck{Status: "unauthorized"})
		case errors.Is(err, courier.ErrProviderNotFound):
			writeJSON(w, http.StatusNotFound, webhookAck{Status: "unknown_provider"})
		case courier.KindOf(err) == courier.KindValidation:
			writeJSON(w, http.StatusBadRequest, webhookAck{Status: "undecodable", Message: err.Error()})
		default:
			s.logger.Error("Webhook processing failed",
				zap.String("provider", provider), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, webhookAck{Status: "internal_error"})
		}
		return
	}

	// Unknown jobs are still acknowledged with HTTP 200 so the provider stops
	// redelivering, but flagged unsuccessful for operator visibility.
	writeJSON(w, http.StatusOK, webhookAck{
		Success: outcome != reconcile.OutcomeUnknownJob,
		Status:  string(outcome),
	})
}

// ============================================================================
// Dispatch API
// ============================================================================

type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type quotesResponse struct {
	Quotes []courier.Quote `json:"quotes"`
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON: " + err.Error()})
		return
	}

	quotes := s.dispatcher.GetQuotes(r.Context(), &req)
	writeJSON(w, http.StatusOK, quotesResponse{Quotes: quotes})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON: " + err.Error()})
		return
	}

	job, err := s.dispatcher.Dispatch(r.Context(), &req)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

type batchResponse struct {
	Jobs   []*courier.Job `json:"jobs"`
	Errors []string       `json:"errors,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req dispatch.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON: " + err.Error()})
		return
	}

	jobs, err := s.dispatcher.DispatchBatch(r.Context(), &req)
	resp := batchResponse{Jobs: jobs}
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
		if len(jobs) == 0 {
			s.writeDispatchError(w, err)
			return
		}
	}
	// Partial success still returns the dispatched jobs.
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.FindByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, courier.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "job not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid JSON: " + err.Error()})
		return
	}

	job, err := s.dispatcher.Cancel(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// writeDispatchError maps taxonomy kinds to HTTP statuses.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	kind := courier.KindOf(err)
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, courier.ErrNoQuotes):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, courier.ErrJobNotFound), errors.Is(err, courier.ErrProviderNotFound):
		status = http.StatusNotFound
	case kind == courier.KindValidation:
		status = http.StatusBadRequest
	case kind == courier.KindSoftDecline, kind == courier.KindRejected:
		status = http.StatusUnprocessableEntity
	case kind == courier.KindAuth:
		status = http.StatusBadGateway
	case kind == courier.KindTransient:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, apiError{Error: err.Error(), Kind: string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
