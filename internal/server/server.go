// Package server exposes the serving core over a thin HTTP surface. The
// handlers only decode, delegate and encode; all decisions happen in the
// engine and model service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"credit-approval-api/internal/engine"
	"credit-approval-api/internal/metrics"
	"credit-approval-api/internal/model"
	"credit-approval-api/internal/registry"
	"credit-approval-api/internal/storage"
)

// Server wires the HTTP surface to the serving core.
type Server struct {
	engine    *engine.Engine
	service   *model.Service
	registry  registry.Client
	modelName string
	store     *storage.Store // optional audit log
	metrics   *metrics.Metrics
	server    *http.Server
}

func New(eng *engine.Engine, service *model.Service, reg registry.Client, modelName string, store *storage.Store, m *metrics.Metrics, port int) *Server {
	s := &Server{
		engine:    eng,
		service:   service,
		registry:  reg,
		modelName: modelName,
		store:     store,
		metrics:   m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/predict", s.handlePredict)
	mux.HandleFunc("/api/v1/reload-model", s.handleReload)
	mux.HandleFunc("/api/v1/model-info", s.handleModelInfo)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting prediction server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	var record engine.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	requestID := requestIDFrom(record, start)
	log.Info().Str("request_id", requestID).Msg("Prediction request received")

	result, err := s.engine.Predict(record)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Prediction failed")
		status := http.StatusInternalServerError
		var predErr *model.PredictionError
		switch {
		case errors.Is(err, model.ErrModelNotLoaded):
			status = http.StatusServiceUnavailable
		case !errors.As(err, &predErr):
			// The pipeline failed before the model ran.
			if s.metrics != nil {
				s.metrics.TransformFailures.Inc()
			}
		}
		// A core failure is never converted into a default prediction.
		writeJSON(w, status, errorResponse{Error: fmt.Sprintf("prediction failed: %v", err)})
		return
	}

	if s.metrics != nil {
		if result.Decision == engine.DecisionApproved {
			s.metrics.Approvals.Inc()
		}
		if result.Confidence != nil {
			s.metrics.Confidence.Observe(*result.Confidence)
		}
	}

	if s.store != nil {
		rec := storage.Record{
			RequestID:    requestID,
			Timestamp:    start,
			Label:        result.Label,
			Probability:  result.Probability,
			Decision:     result.Decision,
			ModelVersion: result.ModelVersion,
		}
		if err := s.store.StorePrediction(rec); err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Msg("Failed to persist audit record")
		}
	}

	log.Info().
		Str("request_id", requestID).
		Str("decision", result.Decision).
		Int("model_version", result.ModelVersion).
		Msg("Prediction completed")

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	log.Info().Msg("Model reload requested")
	identity, err := s.service.Reload(r.Context())
	if err != nil {
		// The previous model keeps serving.
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("model reload failed: %v", err)})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"message":    "Model reloaded successfully",
		"model_info": s.service.Describe(),
		"run_id":     identity.RunID,
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Describe())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	registryConnected := false
	if s.registry != nil {
		if _, err := s.registry.ListVersions(ctx, s.modelName); err == nil {
			registryConnected = true
		} else {
			log.Warn().Err(err).Msg("Registry connection failed")
		}
	}

	status := "healthy"
	if !registryConnected {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             status,
		"timestamp":          time.Now().UTC(),
		"registry_connected": registryConnected,
		"model_loaded":       s.service.Describe().Loaded,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.service.Describe().Loaded {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDFrom(record engine.Record, ts time.Time) string {
	if raw, ok := record["ID"]; ok {
		switch v := raw.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return strconv.FormatInt(ts.UnixNano(), 10)
}
