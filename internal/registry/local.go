package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalRegistry is a file-backed registry for single-host deployments and
// the offline trainer. Versions live in a JSON index next to per-version
// artifact directories:
//
//	<root>/registry.json
//	<root>/<model-name>/<version>/...
type LocalRegistry struct {
	root      string
	indexFile string
	entries   map[string][]Version
}

func NewLocal(root string) (*LocalRegistry, error) {
	lr := &LocalRegistry{
		root:      root,
		indexFile: filepath.Join(root, "registry.json"),
		entries:   make(map[string][]Version),
	}

	if err := lr.loadIndex(); err != nil {
		log.Warn().Err(err).Msg("Failed to load registry index, starting fresh")
	}

	return lr, nil
}

// Register records a new version of the named model whose artifacts were
// already written under the returned directory. The assigned version is one
// greater than the current numeric maximum.
func (lr *LocalRegistry) Register(name, runID string) (Version, string, error) {
	next := 1
	for _, v := range lr.entries[name] {
		if v.Version >= next {
			next = v.Version + 1
		}
	}

	version := Version{
		Version:   next,
		Stage:     "None",
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}
	lr.entries[name] = append(lr.entries[name], version)

	dir := filepath.Join(lr.root, name, strconv.Itoa(next))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Version{}, "", fmt.Errorf("create artifact dir: %w", err)
	}

	if err := lr.saveIndex(); err != nil {
		return Version{}, "", err
	}
	return version, dir, nil
}

// Promote moves one version of the named model into the given stage.
func (lr *LocalRegistry) Promote(name string, version int, stage string) error {
	found := false
	for i := range lr.entries[name] {
		if lr.entries[name][i].Version == version {
			lr.entries[name][i].Stage = stage
			found = true
		} else if lr.entries[name][i].Stage == stage {
			// A stage holds exactly one version at a time.
			lr.entries[name][i].Stage = "Archived"
		}
	}

	if !found {
		return fmt.Errorf("version %d of %s not found", version, name)
	}

	return lr.saveIndex()
}

func (lr *LocalRegistry) ListVersions(_ context.Context, name string) ([]Version, error) {
	versions := make([]Version, len(lr.entries[name]))
	copy(versions, lr.entries[name])
	return versions, nil
}

func (lr *LocalRegistry) ResolveArtifacts(_ context.Context, name string, version int) (string, error) {
	dir := filepath.Join(lr.root, name, strconv.Itoa(version))
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("artifacts for %s v%d not found: %w", name, version, err)
	}
	return dir, nil
}

func (lr *LocalRegistry) loadIndex() error {
	data, err := os.ReadFile(lr.indexFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &lr.entries)
}

func (lr *LocalRegistry) saveIndex() error {
	for name := range lr.entries {
		sort.Slice(lr.entries[name], func(i, j int) bool {
			return lr.entries[name][i].Version < lr.entries[name][j].Version
		})
	}

	data, err := json.MarshalIndent(lr.entries, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(lr.root, 0o750); err != nil {
		return err
	}
	return os.WriteFile(lr.indexFile, data, 0o600)
}
