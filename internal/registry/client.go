// Package registry talks to the model registry that tracks registered
// model names, versions, deployment stages and originating run IDs, and
// materializes a version's artifacts on local disk for loading.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Version is one registered model version as reported by the registry.
type Version struct {
	Version   int       `json:"version"`
	Stage     string    `json:"stage"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Client is the registry capability the resolver and loader consume.
type Client interface {
	// ListVersions returns every registered version of the named model,
	// in no guaranteed order.
	ListVersions(ctx context.Context, name string) ([]Version, error)
	// ResolveArtifacts makes the artifacts of one version available on
	// local disk and returns the directory containing them.
	ResolveArtifacts(ctx context.Context, name string, version int) (string, error)
}

// RESTClient speaks the registry's HTTP API and caches downloaded
// artifacts under a local directory keyed by model name and version.
type RESTClient struct {
	base     string
	cacheDir string
	rest     *resty.Client
}

func NewREST(base, cacheDir string, timeout time.Duration) *RESTClient {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second) // default fallback
	}
	return &RESTClient{base: base, cacheDir: cacheDir, rest: r}
}

type wireVersion struct {
	Version           string `json:"version"`
	CurrentStage      string `json:"current_stage"`
	RunID             string `json:"run_id"`
	CreationTimestamp int64  `json:"creation_timestamp"` // unix millis
}

type searchResp struct {
	ModelVersions []wireVersion `json:"model_versions"`
}

func (c *RESTClient) ListVersions(ctx context.Context, name string) ([]Version, error) {
	resp := &searchResp{}
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("name", name).
		SetResult(resp).
		Get(c.base + "/api/2.0/model-versions/search")
	if err != nil {
		return nil, fmt.Errorf("registry search failed: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return nil, fmt.Errorf("registry error: status %d, body: %s", httpResp.StatusCode(), httpResp.String())
	}

	versions := make([]Version, 0, len(resp.ModelVersions))
	for _, wv := range resp.ModelVersions {
		// The registry reports versions as strings; parse numerically so
		// "10" sorts after "9".
		n, err := strconv.Atoi(wv.Version)
		if err != nil {
			return nil, fmt.Errorf("registry returned non-numeric version %q for %s: %w", wv.Version, name, err)
		}
		versions = append(versions, Version{
			Version:   n,
			Stage:     wv.CurrentStage,
			RunID:     wv.RunID,
			CreatedAt: time.UnixMilli(wv.CreationTimestamp).UTC(),
		})
	}
	return versions, nil
}

type artifactListResp struct {
	Files []string `json:"files"`
}

func (c *RESTClient) ResolveArtifacts(ctx context.Context, name string, version int) (string, error) {
	dir := filepath.Join(c.cacheDir, name, strconv.Itoa(version))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create artifact cache dir: %w", err)
	}

	listResp := &artifactListResp{}
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("name", name).
		SetQueryParam("version", strconv.Itoa(version)).
		SetResult(listResp).
		Get(c.base + "/api/2.0/artifacts/list")
	if err != nil {
		return "", fmt.Errorf("artifact listing failed: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return "", fmt.Errorf("artifact listing error: status %d", httpResp.StatusCode())
	}

	for _, file := range listResp.Files {
		dest := filepath.Join(dir, filepath.Base(file))
		dlResp, err := c.rest.R().
			SetContext(ctx).
			SetQueryParam("name", name).
			SetQueryParam("version", strconv.Itoa(version)).
			SetQueryParam("path", file).
			SetOutput(dest).
			Get(c.base + "/api/2.0/artifacts/get")
		if err != nil {
			return "", fmt.Errorf("download artifact %s: %w", file, err)
		}
		if dlResp.StatusCode() != 200 {
			return "", fmt.Errorf("download artifact %s: status %d", file, dlResp.StatusCode())
		}
	}

	return dir, nil
}
