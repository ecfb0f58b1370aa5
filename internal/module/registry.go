package module

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/metrics"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// Registry is the Module Registry from spec.md §4.4: it discovers module
// files by glob, keeps one Descriptor per discovered id alive across
// crawls, and purges descriptors whose files disappeared. All mutation
// goes through Crawl, which the actor-based Refresh Scheduler in
// internal/dispatch is expected to call from its single owning goroutine
// — Registry itself does no internal locking beyond what's needed to let
// Candidates be read safely from that same goroutine.
type Registry struct {
	mu      sync.RWMutex
	loader  Loader
	logger  *slog.Logger
	metrics *metrics.Metrics
	entries map[string]*Descriptor
	order   []string // insertion order, for deterministic candidate iteration
}

func NewRegistry(loader Loader, logger *slog.Logger) *Registry {
	return &Registry{
		loader:  loader,
		logger:  logger,
		entries: make(map[string]*Descriptor),
	}
}

// WithMetrics attaches m so this Registry records reload counts and
// registry size. Optional: a Registry with no metrics attached simply
// skips recording.
func (r *Registry) WithMetrics(m *metrics.Metrics) *Registry {
	r.metrics = m
	return r
}

// Crawl discovers every module code file matching mainCfg's glob under
// dir, loading new modules, checking hash-pinned updates on known ones,
// and tombstoning ones whose code file disappeared from the glob
// results. The companion configuration path is the code path with its
// source extension replaced by ".json" (spec.md §3, "same basename, JSON
// extension"; §6, "sibling of the module code"), matching the original's
// `module_path.replace(".py", ".json")` (orthanc_ai.py). Per-module
// errors are logged and do not abort the crawl (spec.md §4.4, "one
// module's failure never blocks discovery of the others").
func (r *Registry) Crawl(ctx context.Context, mainCfg config.MainConfig, dir string) error {
	codePaths, err := filepath.Glob(mainCfg.ModuleGlob(dir))
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(codePaths))
	for _, codePath := range codePaths {
		id := moduleID(codePath)
		configPath := ConfigPathFor(codePath)
		seen[id] = true

		desc, ok := r.entries[id]
		if !ok {
			desc = newDescriptor(id, codePath, configPath, r.loader, r.logger)
			r.entries[id] = desc
			r.order = append(r.order, id)
			err := desc.load(ctx)
			r.observeReload("full", err)
			if err != nil {
				r.logger.Warn("module load failed", "module", id, "error", err)
			}
			continue
		}
		beforeCode, beforeConfig := desc.codeHash, desc.configHash
		err := desc.checkUpdate(ctx)
		if kind := reloadKind(desc, beforeCode, beforeConfig); kind != "none" {
			r.observeReload(kind, err)
		}
		if err != nil {
			r.logger.Warn("module reload failed", "module", id, "error", err)
		}
	}

	r.purge(seen)
	if r.metrics != nil {
		r.metrics.SetRegistrySize(len(r.entries))
	}
	return nil
}

func (r *Registry) observeReload(kind string, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	r.metrics.ObserveReload(kind, outcome)
}

// reloadKind reports which reload checkUpdate actually performed, purely
// for metrics labeling: comparing hashes before/after is cheaper than
// threading a return value through checkUpdate's no-op/code/full paths.
func reloadKind(desc *Descriptor, beforeCode, beforeConfig string) string {
	switch {
	case desc.configHash != beforeConfig:
		return "full"
	case desc.codeHash != beforeCode:
		return "code_only"
	default:
		return "none"
	}
}

// purge drops descriptors whose code file is no longer present in the
// latest glob results — spec.md §4.4's end-of-crawl tombstone cleanup.
// Caller must hold r.mu.
func (r *Registry) purge(seen map[string]bool) {
	kept := r.order[:0]
	for _, id := range r.order {
		if seen[id] {
			kept = append(kept, id)
			continue
		}
		if desc := r.entries[id]; desc != nil {
			desc.tombstone()
		}
		delete(r.entries, id)
	}
	r.order = kept
}

// moduleID derives a stable module identifier from its code file path:
// the basename without its source extension (spec.md §3), e.g.
// "modules/echo.code" -> "echo".
func moduleID(codePath string) string {
	base := filepath.Base(codePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ConfigPathFor derives a module's companion configuration path from its
// code path by replacing the source extension with ".json" (spec.md §3,
// "same basename, JSON extension"), matching the original's
// `module_path.replace(".py", ".json")`. Exported so callers outside this
// package (e.g. the validate-module CLI subcommand) can derive the same
// path from a bare code file argument without duplicating the rule.
func ConfigPathFor(codePath string) string {
	return strings.TrimSuffix(codePath, filepath.Ext(codePath)) + ".json"
}

// Candidates returns every loaded module whose TriggerLevel/CallingAET
// match, in a stable (insertion) order — spec.md §9 notes that
// tie-breaking across callbacks isn't specified, but a single callback
// should still visit candidates in a deterministic order.
func (r *Registry) Candidates(level restree.Level, callingAET string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, id := range r.order {
		desc := r.entries[id]
		if desc.Matches(level, callingAET) {
			out = append(out, desc)
		}
	}
	return out
}

// Snapshot returns every known descriptor, loaded or not, sorted by ID —
// used by the admin server's /config endpoint and by tests.
func (r *Registry) Snapshot() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.entries))
	for _, desc := range r.entries {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
