// Package module implements the Module Wrapper and Module Registry from
// spec.md §4.3–§4.4: discovering module files, hot-reloading them on
// content change, and invoking the loaded implementation's process entry
// point.
package module

import (
	"context"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// Implementation is a loaded module's callable entry point — the
// instantiated object the original wraps around ClassName(config).
type Implementation interface {
	Process(ctx context.Context, files restree.Files, remoteAET string) ([]dicom.Object, error)
	Close() error
}

// Loader constructs an Implementation from a module's code file and
// already-validated configuration. Per spec.md §9's Design Notes, the
// production Loader (ProcessLoader) isolates the module in its own
// process rather than dynamically importing code in-process.
type Loader interface {
	Load(ctx context.Context, codePath string, cfg config.ModuleConfig) (Implementation, error)
}
