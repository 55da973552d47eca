package features

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Artifact filenames under the preprocessor directory. All are independently
// optional except the feature-name order, which exists whenever a fit has
// occurred.
const (
	scalerArtifact       = "scaler.json"
	numImputerArtifact   = "imputer_numerical.json"
	catImputerArtifact   = "imputer_categorical.json"
	featureNamesArtifact = "feature_names.json"
	encodedColsArtifact  = "encoded_columns.json"
	encoderPrefix        = "encoder_"
)

func writeArtifact(dir, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o600)
}

func readArtifact(dir, name string, v interface{}) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

// Save writes the fitted state as independent artifacts under dir. After a
// later Load, Transform reproduces this instance's output exactly.
func (e *Engineer) Save(dir string) error {
	if e.state == nil {
		return ErrNotFitted
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create preprocessor dir: %w", err)
	}

	if err := writeArtifact(dir, featureNamesArtifact, e.state.FeatureNames); err != nil {
		return err
	}
	if e.state.Scaler != nil {
		if err := writeArtifact(dir, scalerArtifact, e.state.Scaler); err != nil {
			return err
		}
	}
	if e.state.NumImputer != nil && len(e.state.NumImputer.Fill) > 0 {
		if err := writeArtifact(dir, numImputerArtifact, e.state.NumImputer); err != nil {
			return err
		}
	}
	if e.state.CatImputer != nil && len(e.state.CatImputer.Fill) > 0 {
		if err := writeArtifact(dir, catImputerArtifact, e.state.CatImputer); err != nil {
			return err
		}
	}
	if e.state.OneHot != nil {
		if err := writeArtifact(dir, encodedColsArtifact, e.state.OneHot); err != nil {
			return err
		}
	}
	for name, enc := range e.state.Encoders {
		if err := writeArtifact(dir, encoderPrefix+name+".json", enc); err != nil {
			return err
		}
	}

	log.Info().Str("dir", dir).Msg("Saved preprocessor artifacts")
	return nil
}

// Load rehydrates fitted state from dir into this (unfitted) instance.
// Missing optional artifacts are tolerated; a missing feature-name order
// means no fit ever happened there.
func (e *Engineer) Load(dir string) error {
	if e.state != nil {
		return ErrAlreadyFitted
	}

	state := &fittedState{
		NumImputer: &numericImputer{Fill: make(map[string]float64)},
		CatImputer: &categoricalImputer{Fill: make(map[string]string)},
	}

	ok, err := readArtifact(dir, featureNamesArtifact, &state.FeatureNames)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s missing from %s: %w", featureNamesArtifact, dir, ErrNotFitted)
	}

	if _, err := readArtifact(dir, scalerArtifact, &state.Scaler); err != nil {
		return err
	}
	if _, err := readArtifact(dir, numImputerArtifact, state.NumImputer); err != nil {
		return err
	}
	if _, err := readArtifact(dir, catImputerArtifact, state.CatImputer); err != nil {
		return err
	}

	var oneHot oneHotEncoder
	ok, err = readArtifact(dir, encodedColsArtifact, &oneHot)
	if err != nil {
		return err
	}
	if ok {
		state.OneHot = &oneHot
	}

	encoderFiles, err := filepath.Glob(filepath.Join(dir, encoderPrefix+"*.json"))
	if err != nil {
		return err
	}
	if len(encoderFiles) > 0 {
		state.Encoders = make(map[string]*labelEncoder)
		for _, file := range encoderFiles {
			name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), encoderPrefix), ".json")
			enc := &labelEncoder{}
			if _, err := readArtifact(dir, filepath.Base(file), enc); err != nil {
				return err
			}
			state.Encoders[name] = enc
		}
	}

	if state.Scaler == nil {
		return fmt.Errorf("scaler artifact missing from %s", dir)
	}

	e.state = state
	log.Info().Str("dir", dir).Int("features", len(state.FeatureNames)).Msg("Loaded preprocessor artifacts")
	return nil
}
