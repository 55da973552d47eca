// Command train fits the feature pipeline and a logistic classifier on a
// CSV dataset, writes the model artifacts, and registers the result as a
// new version in a file-backed registry.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"credit-approval-api/internal/cfg"
	"credit-approval-api/internal/features"
	"credit-approval-api/internal/registry"
)

func main() {
	dataPath := flag.String("data", "data/credit_approval.csv", "training dataset (CSV with header)")
	registryRoot := flag.String("registry", "models/registry", "file-backed registry root")
	preprocessorDir := flag.String("preprocessors", "models/preprocessors", "output directory for fitted pipeline artifacts")
	stage := flag.String("promote", "", "stage to promote the new version to (empty = no promotion)")
	epochs := flag.Int("epochs", 500, "gradient descent epochs")
	learningRate := flag.Float64("lr", 0.1, "gradient descent learning rate")
	flag.Parse()

	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	if err := run(c, *dataPath, *registryRoot, *preprocessorDir, *stage, *epochs, *learningRate); err != nil {
		log.Fatal().Err(err).Msg("training failed")
	}
}

func run(c cfg.Settings, dataPath, registryRoot, preprocessorDir, stage string, epochs int, learningRate float64) error {
	frame, err := loadDataset(dataPath, c.Features)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	log.Info().Str("path", dataPath).Int("rows", frame.Rows()).Msg("Dataset loaded")

	engineer := features.NewEngineer(c.Features)
	X, y, names, err := engineer.FitTransform(frame)
	if err != nil {
		return fmt.Errorf("fit pipeline: %w", err)
	}

	intercept, weights := trainLogistic(X, y, epochs, learningRate)
	accuracy := evaluate(X, y, intercept, weights)
	log.Info().
		Int("features", len(names)).
		Float64("train_accuracy", accuracy).
		Msg("Model trained")

	reg, err := registry.NewLocal(registryRoot)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	version, artifactDir, err := reg.Register(c.ModelName, runID)
	if err != nil {
		return fmt.Errorf("register version: %w", err)
	}

	if err := writeModelArtifacts(artifactDir, intercept, weights); err != nil {
		return fmt.Errorf("write artifacts: %w", err)
	}

	if err := engineer.Save(preprocessorDir); err != nil {
		return fmt.Errorf("save preprocessors: %w", err)
	}

	if stage != "" {
		if err := reg.Promote(c.ModelName, version.Version, stage); err != nil {
			return fmt.Errorf("promote version: %w", err)
		}
	}

	log.Info().
		Str("model", c.ModelName).
		Int("version", version.Version).
		Str("run_id", runID).
		Str("stage", stage).
		Str("artifacts", artifactDir).
		Msg("Model registered")
	return nil
}

// loadDataset reads a headered CSV into a frame following the feature
// spec. Numerical cells that fail to parse become missing values for the
// imputer; unknown columns are ignored.
func loadDataset(path string, spec cfg.FeatureSpec) (*features.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("dataset %s has no data rows", path)
	}

	header := rows[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	data := rows[1:]
	frame := features.NewFrame()

	numeric := append(append([]string(nil), spec.NumericalFeatures...), spec.Target)
	for _, name := range numeric {
		col, ok := index[name]
		if !ok {
			if name == spec.Target {
				return nil, fmt.Errorf("target column %s missing from %s", name, path)
			}
			continue
		}
		values := make([]float64, len(data))
		for i, row := range data {
			v, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				v = math.NaN()
			}
			values[i] = v
		}
		if err := frame.AddNumeric(name, values); err != nil {
			return nil, err
		}
	}

	for _, name := range spec.CategoricalFeatures {
		col, ok := index[name]
		if !ok {
			continue
		}
		values := make([]string, len(data))
		for i, row := range data {
			values[i] = row[col]
		}
		if err := frame.AddString(name, values); err != nil {
			return nil, err
		}
	}

	return frame, nil
}

// trainLogistic fits a logistic regression with full-batch gradient
// descent. Inputs are already scaled, so a fixed learning rate converges
// well enough for this dataset size.
func trainLogistic(X [][]float64, y []int, epochs int, learningRate float64) (float64, []float64) {
	if len(X) == 0 {
		return 0, nil
	}
	n := float64(len(X))
	weights := make([]float64, len(X[0]))
	intercept := 0.0

	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, len(weights))
		gradB := 0.0
		for i, row := range X {
			margin := intercept
			for j, w := range weights {
				margin += w * row[j]
			}
			p := 1.0 / (1.0 + math.Exp(-margin))
			diff := p - float64(y[i])
			for j, v := range row {
				gradW[j] += diff * v
			}
			gradB += diff
		}
		for j := range weights {
			weights[j] -= learningRate * gradW[j] / n
		}
		intercept -= learningRate * gradB / n
	}

	return intercept, weights
}

func evaluate(X [][]float64, y []int, intercept float64, weights []float64) float64 {
	if len(X) == 0 {
		return 0
	}
	correct := 0
	for i, row := range X {
		margin := intercept
		for j, w := range weights {
			margin += w * row[j]
		}
		label := 0
		if 1.0/(1.0+math.Exp(-margin)) > 0.5 {
			label = 1
		}
		if label == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(X))
}

// Artifact payloads mirror the formats the serving loader reads. The
// trainer produces the universal wrapper plus the native linear flavor.
type linearPayload struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

type universalPayload struct {
	Format string        `json:"format"`
	Linear linearPayload `json:"linear"`
}

func writeModelArtifacts(dir string, intercept float64, weights []float64) error {
	linear := linearPayload{Intercept: intercept, Coefficients: weights}

	if err := writeJSONFile(filepath.Join(dir, "universal.json"), universalPayload{Format: "linear", Linear: linear}); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, "model_linear.json"), linear)
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
