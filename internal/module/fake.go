package module

import (
	"context"
	"sync"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// FakeLoader is a test-only Loader that never spawns a process, so
// internal/module and internal/dispatch tests can exercise the Registry
// and the dispatcher without a real module executable on disk. It
// dispenses FakeImplementations keyed by code path, and can be told to
// fail loads for a given path to exercise the tombstone path.
type FakeLoader struct {
	mu       sync.Mutex
	FailFor  map[string]bool
	Process  func(ctx context.Context, files restree.Files, remoteAET string) ([]dicom.Object, error)
	Loads    int
	LoadArgs []string
}

func NewFakeLoader() *FakeLoader {
	return &FakeLoader{FailFor: make(map[string]bool)}
}

func (f *FakeLoader) Load(ctx context.Context, codePath string, cfg config.ModuleConfig) (Implementation, error) {
	f.mu.Lock()
	f.Loads++
	f.LoadArgs = append(f.LoadArgs, codePath)
	fail := f.FailFor[codePath]
	f.mu.Unlock()

	if fail {
		return nil, errFakeLoad{codePath}
	}
	return &FakeImplementation{process: f.Process}, nil
}

type errFakeLoad struct{ path string }

func (e errFakeLoad) Error() string { return "fake load failure: " + e.path }

// FakeImplementation is the Implementation a FakeLoader dispenses. Its
// Process delegates to the loader's Process func if set, otherwise
// echoes back every instance it was given unchanged.
type FakeImplementation struct {
	process func(ctx context.Context, files restree.Files, remoteAET string) ([]dicom.Object, error)
	closed  bool
}

func (f *FakeImplementation) Process(ctx context.Context, files restree.Files, remoteAET string) ([]dicom.Object, error) {
	if f.process != nil {
		return f.process(ctx, files, remoteAET)
	}
	return files.Flatten(), nil
}

func (f *FakeImplementation) Close() error {
	f.closed = true
	return nil
}
