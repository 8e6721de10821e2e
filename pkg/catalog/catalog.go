// Package catalog implements the Model Catalog (spec §4.2): a read-only,
// immutable-after-load registry of Model Descriptors, loaded from the first
// readable JSON document among a user/project/system search path, falling
// back to a hard-coded set so the system stays operational without any
// config file present.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// Catalog is a read-only-after-Load registry of Model Descriptors.
// Safe for concurrent use: Load is idempotent and guarded by a
// singleflight.Group so concurrent cold-start callers share one disk read.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]coretypes.ModelDescriptor
	loaded bool

	group singleflight.Group
}

// New returns an empty, unloaded Catalog. Call Load before use, or use
// LoadDefault to search the standard config locations.
func New() *Catalog {
	return &Catalog{models: make(map[string]coretypes.ModelDescriptor)}
}

// document mirrors the JSON shape described in spec §6 (providers.<kind>.models).
type document struct {
	Version   string                         `json:"version"`
	Providers map[string]providerModelsBlock `json:"providers"`
}

type providerModelsBlock struct {
	Models map[string]modelRecord `json:"models"`
}

type modelRecord struct {
	DisplayName       string  `json:"display_name"`
	APIID             string  `json:"api_id"`
	InputCost         float64 `json:"input_cost"`
	OutputCost        float64 `json:"output_cost"`
	ThinkingCost      float64 `json:"thinking_cost"`
	ContextWindow     int     `json:"context_window"`
	MaxOutput         int     `json:"max_output"`
	SupportsTools     bool    `json:"supports_tools"`
	SupportsVision    bool    `json:"supports_vision"`
	SupportsStreaming bool    `json:"supports_streaming"`
	Tier              string  `json:"tier"`
	Released          string  `json:"released"`
	Deprecated        bool    `json:"deprecated"`
}

// ConfigSearchPaths returns the ordered list of candidate config file
// locations per spec §4.2: user config dir, project-local, system config.
func ConfigSearchPaths(appName string) []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName, "models.json"))
	}
	paths = append(paths, filepath.Join(".", appName+".models.json"))
	paths = append(paths, filepath.Join("/etc", appName, "models.json"))
	return paths
}

// LoadDefault searches ConfigSearchPaths("aicore") for a readable JSON
// document and loads it; if none is found it loads FallbackModels instead.
// Concurrent callers during cold start share a single disk read via
// singleflight.
func (c *Catalog) LoadDefault() error {
	_, err, _ := c.group.Do("load-default", func() (any, error) {
		for _, p := range ConfigSearchPaths("aicore") {
			data, readErr := os.ReadFile(p)
			if readErr != nil {
				continue
			}
			return nil, c.loadJSON(data)
		}
		return nil, c.loadFallback()
	})
	return err
}

// LoadFile loads a specific JSON document, bypassing the search path.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: read %q: %w", path, err)
	}
	return c.loadJSON(data)
}

// LoadReader decodes a JSON document already in memory (tests, embedded
// configs).
func (c *Catalog) LoadReader(data []byte) error {
	return c.loadJSON(data)
}

func (c *Catalog) loadJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("catalog: decode: %w", err)
	}

	models := make(map[string]coretypes.ModelDescriptor)
	for kindName, block := range doc.Providers {
		kind := coretypes.ProviderKind(kindName)
		for id, rec := range block.Models {
			desc, err := rec.toDescriptor(id, kind)
			if err != nil {
				return fmt.Errorf("catalog: model %q: %w", id, err)
			}
			models[id] = desc
		}
	}

	c.mu.Lock()
	c.models = models
	c.loaded = true
	c.mu.Unlock()
	return nil
}

func (r modelRecord) toDescriptor(id string, kind coretypes.ProviderKind) (coretypes.ModelDescriptor, error) {
	d := coretypes.ModelDescriptor{
		ID:                  id,
		DisplayName:         orDefault(r.DisplayName, id),
		APIID:               orDefault(r.APIID, id),
		ProviderKind:        kind,
		InputCostPerMTok:    r.InputCost,
		OutputCostPerMTok:   r.OutputCost,
		ThinkingCostPerMTok: r.ThinkingCost,
		ContextWindow:       orDefaultInt(r.ContextWindow, 128_000),
		MaxOutput:           orDefaultInt(r.MaxOutput, 4_096),
		SupportsTools:       r.SupportsTools,
		SupportsVision:      r.SupportsVision,
		SupportsStreaming:   r.SupportsStreaming,
		Tier:                coretypes.ModelTier(orDefault(r.Tier, string(coretypes.TierMid))),
		ReleaseDate:         r.Released,
		Deprecated:          r.Deprecated,
	}
	if d.InputCostPerMTok < 0 || d.OutputCostPerMTok < 0 || d.ThinkingCostPerMTok < 0 {
		return coretypes.ModelDescriptor{}, fmt.Errorf("costs must be non-negative")
	}
	if d.MaxOutput > d.ContextWindow {
		return coretypes.ModelDescriptor{}, fmt.Errorf("max_output (%d) exceeds context_window (%d)", d.MaxOutput, d.ContextWindow)
	}
	return d, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// GetByID returns the descriptor registered under id.
func (c *Catalog) GetByID(id string) (coretypes.ModelDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	return m, ok
}

// GetByProvider returns all descriptors for the given provider kind, in
// unspecified order.
func (c *Catalog) GetByProvider(kind coretypes.ProviderKind) []coretypes.ModelDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []coretypes.ModelDescriptor
	for _, m := range c.models {
		if m.ProviderKind == kind {
			out = append(out, m)
		}
	}
	return out
}

// GetCheapest returns the non-deprecated model for kind minimizing
// input+output cost per million tokens. Returns false if none exist.
func (c *Catalog) GetCheapest(kind coretypes.ProviderKind) (coretypes.ModelDescriptor, bool) {
	candidates := c.GetByProvider(kind)
	var best coretypes.ModelDescriptor
	found := false
	for _, m := range candidates {
		if m.Deprecated {
			continue
		}
		if !found || m.InputCostPerMTok+m.OutputCostPerMTok < best.InputCostPerMTok+best.OutputCostPerMTok {
			best = m
			found = true
		}
	}
	return best, found
}

// EstimateCost computes cost from the catalog's pricing for modelID.
// Returns 0 if the model is unknown or local.
func (c *Catalog) EstimateCost(modelID string, inputTokens, outputTokens uint64) float64 {
	m, ok := c.GetByID(modelID)
	if !ok {
		return 0
	}
	if m.ProviderKind == coretypes.LocalMLX || m.ProviderKind == coretypes.LocalAppleFoundation {
		return 0
	}
	return float64(inputTokens)/1_000_000*m.InputCostPerMTok + float64(outputTokens)/1_000_000*m.OutputCostPerMTok
}

// Loaded reports whether Load* has succeeded at least once.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// loadFallback installs FallbackModels directly (used when no JSON document
// is found anywhere in the search path).
func (c *Catalog) loadFallback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = make(map[string]coretypes.ModelDescriptor, len(FallbackModels))
	for _, m := range FallbackModels {
		c.models[m.ID] = m
	}
	c.loaded = true
	return nil
}
