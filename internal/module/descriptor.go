package module

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/resilience"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// Descriptor is the Module Wrapper from spec.md §4.3: one module's code
// file, its companion configuration file, their content hashes, and the
// loaded Implementation those hashes produced. checkUpdate implements the
// hash-pinned reload policy — a changed config hash reloads both config
// and code, a changed code hash alone reloads code only, keeping the
// already-parsed config.
type Descriptor struct {
	ID         string
	CodePath   string
	ConfigPath string

	codeHash   string
	configHash string

	Config ModuleConfig
	Loaded bool
	Impl   Implementation

	loader Loader
	logger *slog.Logger
}

// ModuleConfig is an alias so callers of this package don't also need to
// import internal/config directly for the common case.
type ModuleConfig = config.ModuleConfig

func newDescriptor(id, codePath, configPath string, loader Loader, logger *slog.Logger) *Descriptor {
	return &Descriptor{
		ID:         id,
		CodePath:   codePath,
		ConfigPath: configPath,
		loader:     loader,
		logger:     logger,
	}
}

// load performs a full (re)load: parse+validate the configuration file,
// then ask the Loader to instantiate the module's implementation. Any
// failure tombstones the descriptor (Loaded=false, Impl=nil) rather than
// leaving a half-constructed module in place, per spec.md §4.4. Because
// tombstone also clears the stored hashes, the next checkUpdate sees a
// change and attempts the full load again on every crawl.
func (d *Descriptor) load(ctx context.Context) error {
	cfg, hash, err := config.LoadModuleConfig(d.ConfigPath)
	if err != nil {
		d.tombstone()
		return fmt.Errorf("loading module %s: %w", d.ID, err)
	}
	d.configHash = hash
	d.Config = cfg

	impl, err := d.loader.Load(ctx, d.CodePath, cfg)
	if err != nil {
		d.tombstone()
		return resilience.Wrap(resilience.ModuleLoad, "module.load:"+d.ID, err)
	}

	codeHash, err := config.HashFile(d.CodePath)
	if err != nil {
		d.tombstone()
		return resilience.Wrap(resilience.ModuleLoad, "module.hash_code:"+d.ID, err)
	}
	d.codeHash = codeHash
	d.Impl = impl
	d.Loaded = true
	return nil
}

// reloadCode re-instantiates the implementation against the
// already-validated Config, without re-reading the configuration file.
// Used when only the code file's hash changed.
func (d *Descriptor) reloadCode(ctx context.Context) error {
	if d.Impl != nil {
		_ = d.Impl.Close()
	}
	impl, err := d.loader.Load(ctx, d.CodePath, d.Config)
	if err != nil {
		d.tombstone()
		return resilience.Wrap(resilience.ModuleLoad, "module.reload_code:"+d.ID, err)
	}
	codeHash, err := config.HashFile(d.CodePath)
	if err != nil {
		d.tombstone()
		return resilience.Wrap(resilience.ModuleLoad, "module.hash_code:"+d.ID, err)
	}
	d.codeHash = codeHash
	d.Impl = impl
	d.Loaded = true
	return nil
}

// tombstone clears the descriptor back to an unloaded state. It also
// clears both stored hashes, not just Loaded/Impl: otherwise a load
// failure that happened after the configuration hash was already
// recorded would make the next checkUpdate see "no change" and never
// retry, even though the descriptor was never actually loaded.
func (d *Descriptor) tombstone() {
	if d.Impl != nil {
		_ = d.Impl.Close()
	}
	d.Impl = nil
	d.Loaded = false
	d.codeHash = ""
	d.configHash = ""
}

// checkUpdate re-hashes both files and reloads whatever changed, per
// spec.md §4.3's reload policy. It returns nil when nothing changed, or
// when a reload (full or code-only) succeeded; a reload failure is
// returned so the caller can log it, and leaves the descriptor
// tombstoned rather than running stale code against a config that no
// longer matches it.
func (d *Descriptor) checkUpdate(ctx context.Context) error {
	newConfigHash, err := config.HashFile(d.ConfigPath)
	if err != nil {
		d.tombstone()
		return resilience.Wrap(resilience.ConfigLoad, "module.stat_config:"+d.ID, err)
	}
	if newConfigHash != d.configHash {
		return d.load(ctx)
	}

	newCodeHash, err := config.HashFile(d.CodePath)
	if err != nil {
		d.tombstone()
		return resilience.Wrap(resilience.ModuleLoad, "module.stat_code:"+d.ID, err)
	}
	if newCodeHash != d.codeHash {
		return d.reloadCode(ctx)
	}
	return nil
}

// Process invokes the loaded implementation, wrapping any error it
// returns as ModuleRuntime so the dispatcher can isolate it from other
// modules' cycles (spec.md §7). A descriptor that failed to load simply
// contributes nothing.
func (d *Descriptor) Process(ctx context.Context, files restree.Files, remoteAET string) ([]dicom.Object, error) {
	if !d.Loaded || d.Impl == nil {
		return nil, nil
	}
	out, err := d.Impl.Process(ctx, files, remoteAET)
	if err != nil {
		return nil, resilience.Wrap(resilience.ModuleRuntime, "module.process:"+d.ID, err)
	}
	return out, nil
}

// Matches reports whether this module is a candidate for an event at the
// given level, called by callingAET — spec.md §4.6 step 4's module
// selection rule.
func (d *Descriptor) Matches(level restree.Level, callingAET string) bool {
	return d.Loaded && d.Config.TriggerLevel == level && d.Config.CallingAET == callingAET
}
