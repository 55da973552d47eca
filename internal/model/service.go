package model

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"credit-approval-api/internal/registry"
)

// MetricsInterface defines the metrics methods needed by the service.
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	ModelReloadsInc()
	ModelReloadFailuresInc()
	ModelVersionSet(float64)
}

// Info describes the currently served model.
type Info struct {
	Name    string `json:"name"`
	Stage   string `json:"stage"`
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Loaded  bool   `json:"loaded"`
}

// Service owns the currently loaded model. Predictions read the active
// model without locking; Reload builds the replacement off to the side and
// swaps it in atomically, so readers never observe a partial model.
//
// Construct exactly one Service in the composition root and pass it by
// handle; there is no package-level instance.
type Service struct {
	resolver *registry.Resolver
	client   registry.Client
	name     string
	stage    string
	metrics  MetricsInterface

	current  atomic.Pointer[LoadedModel]
	reloadMu sync.Mutex
}

func NewService(client registry.Client, name, stage string, metrics MetricsInterface) *Service {
	return &Service{
		resolver: registry.NewResolver(client),
		client:   client,
		name:     name,
		stage:    stage,
		metrics:  metrics,
	}
}

// Load resolves the current version for the configured stage, loads it, and
// makes it the active model. On any failure the prior model (if any) keeps
// serving. Loading performs registry and storage I/O and holds no lock that
// blocks concurrent predictions.
func (s *Service) Load(ctx context.Context) (registry.Identity, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	identity, err := s.resolver.Resolve(ctx, s.name, s.stage)
	if err != nil {
		return registry.Identity{}, fmt.Errorf("resolve %s/%s: %w", s.name, s.stage, err)
	}

	dir, err := s.client.ResolveArtifacts(ctx, identity.Name, identity.Version)
	if err != nil {
		return registry.Identity{}, &LoadError{Identity: identity, Cause: err}
	}

	loaded, err := Load(identity, dir)
	if err != nil {
		return registry.Identity{}, err
	}

	s.current.Store(loaded)
	if s.metrics != nil {
		s.metrics.ModelVersionSet(float64(identity.Version))
	}

	log.Info().
		Str("model", identity.Name).
		Str("stage", identity.Stage).
		Int("version", identity.Version).
		Str("run_id", identity.RunID).
		Bool("proba", loaded.Proba != nil).
		Msg("Model activated")

	return identity, nil
}

// Reload performs a fresh load. On failure the previous model remains
// active and the error is reported to the caller.
func (s *Service) Reload(ctx context.Context) (registry.Identity, error) {
	identity, err := s.Load(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ModelReloadFailuresInc()
		}
		log.Error().Err(err).Msg("Model reload failed, previous model remains active")
		return registry.Identity{}, err
	}
	if s.metrics != nil {
		s.metrics.ModelReloadsInc()
	}
	return identity, nil
}

// Predict returns class labels for the feature rows using the active model.
func (s *Service) Predict(features [][]float64) ([]int, error) {
	loaded := s.current.Load()
	if loaded == nil {
		return nil, ErrModelNotLoaded
	}

	start := time.Now()
	labels, err := loaded.Predict.Predict(features)
	if s.metrics != nil {
		s.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.PredictionFailuresInc()
		}
		return nil, &PredictionError{Cause: err}
	}

	if s.metrics != nil {
		s.metrics.PredictionsInc()
	}
	return labels, nil
}

// PredictProba returns per-class probabilities, or nil when the active
// model carries no probability support or the native handle fails.
// Probability is a best-effort enhancement, never a hard dependency.
func (s *Service) PredictProba(features [][]float64) ([][]float64, error) {
	loaded := s.current.Load()
	if loaded == nil {
		return nil, ErrModelNotLoaded
	}
	if loaded.Proba == nil {
		return nil, nil
	}

	probs, err := loaded.Proba.PredictProba(features)
	if err != nil {
		log.Warn().Err(err).Msg("predict_proba failed, continuing without probabilities")
		return nil, nil
	}
	return probs, nil
}

// Describe reports the identity of the active model. It always succeeds;
// Loaded is false before the first successful load.
func (s *Service) Describe() Info {
	loaded := s.current.Load()
	if loaded == nil {
		return Info{Name: s.name, Stage: s.stage, Loaded: false}
	}
	return Info{
		Name:    loaded.Identity.Name,
		Stage:   loaded.Identity.Stage,
		Version: loaded.Identity.Version,
		RunID:   loaded.Identity.RunID,
		Loaded:  true,
	}
}
