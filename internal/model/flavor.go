package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"credit-approval-api/internal/registry"
)

// Artifact filenames within a model version's directory. The universal
// wrapper must always be present; native flavors are optional.
const (
	UniversalArtifact = "universal.json"
	XGBArtifact       = "model_xgb.json"
	LGBArtifact       = "model_lgb.txt"
	EnsembleArtifact  = "model_ensemble.json"
	LinearArtifact    = "model_linear.json"
)

// LoadedModel is a fully constructed, immutable model. Proba is nil when no
// native flavor could be loaded; callers treat that as a degraded-but-valid
// state, not an error.
type LoadedModel struct {
	Predict  PredictHandle
	Proba    ProbaHandle
	Identity registry.Identity
}

// flavorLoader pairs a flavor tag with its load function. Loaders parse the
// whole artifact before constructing a handle, so a failed attempt leaves
// nothing behind.
type flavorLoader struct {
	tag  string
	load func(dir string) (ProbaHandle, error)
}

// nativeFlavors is the fixed priority order for probability support. The
// first loader that succeeds wins; the rest are skipped.
var nativeFlavors = []flavorLoader{
	{"xgboost", loadXGB},
	{"lightgbm", loadLGB},
	{"ensemble", loadEnsemble},
	{"linear", loadLinear},
}

func loadXGB(dir string) (ProbaHandle, error) {
	m := &boostedModel{}
	if err := loadJSONModel(filepath.Join(dir, XGBArtifact), m); err != nil {
		return nil, err
	}
	if len(m.Trees) == 0 {
		return nil, fmt.Errorf("boosted model has no trees")
	}
	for i, t := range m.Trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return m, nil
}

func loadLGB(dir string) (ProbaHandle, error) {
	return parseLGBModel(filepath.Join(dir, LGBArtifact))
}

func loadEnsemble(dir string) (ProbaHandle, error) {
	m := &ensembleModel{}
	if err := loadJSONModel(filepath.Join(dir, EnsembleArtifact), m); err != nil {
		return nil, err
	}
	if len(m.Trees) == 0 {
		return nil, fmt.Errorf("ensemble model has no trees")
	}
	for i, t := range m.Trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return m, nil
}

func loadLinear(dir string) (ProbaHandle, error) {
	m := &linearModel{}
	if err := loadJSONModel(filepath.Join(dir, LinearArtifact), m); err != nil {
		return nil, err
	}
	if len(m.Coefficients) == 0 {
		return nil, fmt.Errorf("linear model has no coefficients")
	}
	return m, nil
}

func loadUniversal(dir string) (PredictHandle, error) {
	m := &universalModel{}
	if err := loadJSONModel(filepath.Join(dir, UniversalArtifact), m); err != nil {
		return nil, err
	}
	switch m.Format {
	case "linear":
		if m.Linear == nil || len(m.Linear.Coefficients) == 0 {
			return nil, fmt.Errorf("universal linear payload is empty")
		}
	case "boosted":
		if m.Trees == nil || len(m.Trees.Trees) == 0 {
			return nil, fmt.Errorf("universal boosted payload is empty")
		}
		for i, t := range m.Trees.Trees {
			if err := t.validate(); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
	default:
		return nil, fmt.Errorf("unknown universal payload format %q", m.Format)
	}
	return m, nil
}

// Load builds a LoadedModel from a version's artifact directory. The
// universal wrapper must load or the whole call fails; native flavors are
// then tried in priority order and the first success provides probability
// support.
func Load(identity registry.Identity, dir string) (*LoadedModel, error) {
	predict, err := loadUniversal(dir)
	if err != nil {
		return nil, &LoadError{Identity: identity, Cause: err}
	}

	var proba ProbaHandle
	for _, fl := range nativeFlavors {
		h, err := fl.load(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Debug().Err(err).Str("flavor", fl.tag).Msg("Native flavor load failed")
			}
			continue
		}
		log.Info().
			Str("model", identity.Name).
			Int("version", identity.Version).
			Str("flavor", fl.tag).
			Msg("Model loaded with probability support")
		proba = h
		break
	}

	if proba == nil {
		log.Info().
			Str("model", identity.Name).
			Int("version", identity.Version).
			Msg("Model loaded (universal only, no probability support)")
	}

	return &LoadedModel{
		Predict:  predict,
		Proba:    proba,
		Identity: identity,
	}, nil
}
