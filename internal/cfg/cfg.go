package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Encoding methods supported by the feature pipeline.
const (
	EncodingOneHot = "onehot"
	EncodingLabel  = "label"
)

// Scaling methods supported by the feature pipeline.
const (
	ScalingStandard = "standard"
	ScalingMinMax   = "minmax"
	ScalingRobust   = "robust"
)

// Missing-value strategies for numerical features. Categorical features
// are always imputed with the most frequent value.
const (
	MissingMean         = "mean"
	MissingMedian       = "median"
	MissingMostFrequent = "most_frequent"
)

// FeatureSpec describes the raw tabular schema and the pipeline choices.
// It is supplied by configuration and read-only to the feature pipeline.
type FeatureSpec struct {
	NumericalFeatures   []string
	CategoricalFeatures []string
	Target              string
	EncodingMethod      string
	ScalingMethod       string
	MissingStrategy     string
}

type Settings struct {
	RegistryURL     string
	RegistryTimeout time.Duration
	ModelName       string
	ModelStage      string
	ArtifactCache   string
	PreprocessorDir string
	DataPath        string
	ListenPort      int
	Features        FeatureSpec
}

type ConfigFile struct {
	Registry struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"registry"`

	Model struct {
		Name            string `yaml:"name"`
		Stage           string `yaml:"stage"`
		ArtifactCache   string `yaml:"artifactCache"`
		PreprocessorDir string `yaml:"preprocessorDir"`
	} `yaml:"model"`

	Features struct {
		Numerical       []string `yaml:"numerical"`
		Categorical     []string `yaml:"categorical"`
		Target          string   `yaml:"target"`
		EncodingMethod  string   `yaml:"encodingMethod"`
		ScalingMethod   string   `yaml:"scalingMethod"`
		MissingStrategy string   `yaml:"missingStrategy"`
	} `yaml:"features"`

	System struct {
		DataPath   string `yaml:"dataPath"`
		ListenPort int    `yaml:"listenPort"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Registry.Timeout)
	if err != nil {
		timeout = 10 * time.Second
	}

	settings := Settings{
		RegistryURL:     getEnvOrDefault("REGISTRY_URL", config.Registry.URL),
		RegistryTimeout: timeout,
		ModelName:       getEnvOrDefault("MODEL_NAME", config.Model.Name),
		ModelStage:      getEnvOrDefault("MODEL_STAGE", config.Model.Stage),
		ArtifactCache:   getEnvOrDefault("ARTIFACT_CACHE", config.Model.ArtifactCache),
		PreprocessorDir: getEnvOrDefault("PREPROCESSOR_DIR", config.Model.PreprocessorDir),
		DataPath:        getEnvOrDefault("DATA_PATH", config.System.DataPath),
		ListenPort:      getIntFromEnvOrConfig("LISTEN_PORT", config.System.ListenPort),
		Features: FeatureSpec{
			NumericalFeatures:   getListFromEnvOrConfig("NUMERICAL_FEATURES", config.Features.Numerical),
			CategoricalFeatures: getListFromEnvOrConfig("CATEGORICAL_FEATURES", config.Features.Categorical),
			Target:              getEnvOrDefault("TARGET_COLUMN", config.Features.Target),
			EncodingMethod:      getEnvOrDefault("ENCODING_METHOD", config.Features.EncodingMethod),
			ScalingMethod:       getEnvOrDefault("SCALING_METHOD", config.Features.ScalingMethod),
			MissingStrategy:     getEnvOrDefault("MISSING_STRATEGY", config.Features.MissingStrategy),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	registryURL, err := getEnvRequired("REGISTRY_URL")
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		RegistryURL:     registryURL,
		RegistryTimeout: getDurationOrDefault("REGISTRY_TIMEOUT", 10*time.Second),
		ModelName:       getEnvOrDefault("MODEL_NAME", "card_approval_model"),
		ModelStage:      getEnvOrDefault("MODEL_STAGE", "Production"),
		ArtifactCache:   getEnvOrDefault("ARTIFACT_CACHE", "models"),
		PreprocessorDir: getEnvOrDefault("PREPROCESSOR_DIR", "models/preprocessors"),
		DataPath:        os.Getenv("DATA_PATH"), // optional
		ListenPort:      getIntOrDefault("LISTEN_PORT", 8080),
		Features: FeatureSpec{
			NumericalFeatures:   splitOrDefault(os.Getenv("NUMERICAL_FEATURES"), defaultNumericalFeatures()),
			CategoricalFeatures: splitOrDefault(os.Getenv("CATEGORICAL_FEATURES"), defaultCategoricalFeatures()),
			Target:              getEnvOrDefault("TARGET_COLUMN", "approved"),
			EncodingMethod:      getEnvOrDefault("ENCODING_METHOD", EncodingOneHot),
			ScalingMethod:       getEnvOrDefault("SCALING_METHOD", ScalingStandard),
			MissingStrategy:     getEnvOrDefault("MISSING_STRATEGY", MissingMedian),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func defaultNumericalFeatures() []string {
	return []string{
		"age", "annual_income", "credit_score",
		"total_credit_limit", "num_existing_credit_cards",
		"employment_years", "debt_to_income_ratio",
	}
}

func defaultCategoricalFeatures() []string {
	return []string{"housing_type", "employment_status", "education_level"}
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return getIntOrDefault(key, 8080)
}

func getListFromEnvOrConfig(key string, configValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return strings.Split(env, ",")
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.RegistryURL == "" {
		return fmt.Errorf("registry URL is required")
	}
	if settings.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if settings.ModelStage == "" {
		return fmt.Errorf("model stage cannot be empty")
	}

	if settings.RegistryTimeout < time.Second || settings.RegistryTimeout > time.Minute {
		return fmt.Errorf("registry timeout must be between 1s and 1m, got %v", settings.RegistryTimeout)
	}
	if settings.ListenPort < 1024 || settings.ListenPort > 65535 {
		return fmt.Errorf("listen port must be between 1024 and 65535, got %d", settings.ListenPort)
	}

	return ValidateFeatureSpec(&settings.Features)
}

// ValidateFeatureSpec checks a feature specification independently of the
// service settings so the training command can reuse it.
func ValidateFeatureSpec(spec *FeatureSpec) error {
	if len(spec.NumericalFeatures) == 0 && len(spec.CategoricalFeatures) == 0 {
		return fmt.Errorf("at least one numerical or categorical feature must be specified")
	}
	if spec.Target == "" {
		return fmt.Errorf("target column cannot be empty")
	}

	for _, name := range spec.NumericalFeatures {
		for _, other := range spec.CategoricalFeatures {
			if name == other {
				return fmt.Errorf("feature %s listed as both numerical and categorical", name)
			}
		}
	}

	switch spec.EncodingMethod {
	case EncodingOneHot, EncodingLabel:
	default:
		return fmt.Errorf("unknown encoding method: %s", spec.EncodingMethod)
	}

	switch spec.ScalingMethod {
	case ScalingStandard, ScalingMinMax, ScalingRobust:
	default:
		return fmt.Errorf("unknown scaling method: %s", spec.ScalingMethod)
	}

	switch spec.MissingStrategy {
	case MissingMean, MissingMedian, MissingMostFrequent:
	default:
		return fmt.Errorf("unknown missing-value strategy: %s", spec.MissingStrategy)
	}

	return nil
}
