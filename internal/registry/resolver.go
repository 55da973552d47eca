package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Identity pins down exactly which registered model a deployment serves.
// Immutable once resolved.
type Identity struct {
	Name    string
	Stage   string
	Version int
	RunID   string
}

// NoVersionFoundError reports that no registered version of the model is
// currently in the requested stage.
type NoVersionFoundError struct {
	Name  string
	Stage string
}

func (e *NoVersionFoundError) Error() string {
	return fmt.Sprintf("no version of model %q found in stage %q", e.Name, e.Stage)
}

// ErrAmbiguousVersion means two candidates tied on both version number and
// creation time, so there is no deterministic winner.
var ErrAmbiguousVersion = errors.New("ambiguous model version: unresolvable tie between candidates")

// Resolver picks the model version to load for a deployment stage.
type Resolver struct {
	client Client
}

func NewResolver(client Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the identity of the stage's current model: the
// stage-matching candidate with the numerically greatest version, ties
// broken by most recent creation time. The registry's own ordering is
// never trusted.
func (r *Resolver) Resolve(ctx context.Context, name, stage string) (Identity, error) {
	versions, err := r.client.ListVersions(ctx, name)
	if err != nil {
		return Identity{}, fmt.Errorf("list versions of %s: %w", name, err)
	}

	candidates := versions[:0:0]
	for _, v := range versions {
		if v.Stage == stage {
			candidates = append(candidates, v)
		}
	}

	if len(candidates) == 0 {
		return Identity{}, &NoVersionFoundError{Name: name, Stage: stage}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Version != candidates[j].Version {
			return candidates[i].Version > candidates[j].Version
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	best := candidates[0]
	if len(candidates) > 1 {
		runnerUp := candidates[1]
		if runnerUp.Version == best.Version && runnerUp.CreatedAt.Equal(best.CreatedAt) {
			return Identity{}, fmt.Errorf("%w: %s v%d in %s", ErrAmbiguousVersion, name, best.Version, stage)
		}
	}

	log.Info().
		Str("model", name).
		Str("stage", stage).
		Int("version", best.Version).
		Str("run_id", best.RunID).
		Msg("Resolved model version")

	return Identity{
		Name:    name,
		Stage:   stage,
		Version: best.Version,
		RunID:   best.RunID,
	}, nil
}
