package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/oriongate/dicomdispatch/internal/restree"
)

// FakeClient is a test-only, in-memory Client: studies/series/instances and
// instance metadata/bytes are whatever the test seeds into its maps, and
// every call is recorded for assertions. It lets internal/dispatch's tests
// exercise the full event pipeline without a real archive listening
// anywhere.
type FakeClient struct {
	mu sync.Mutex

	Studies   map[string][]string
	Series    map[string][]string
	Instances map[string][]string
	Meta      map[string]restree.InstanceMeta
	Bytes     map[string][]byte

	Submitted []string
	Stored    map[string][]string
	Deleted   []string
	Logs      []string

	NextSubmittedID int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Studies:   make(map[string][]string),
		Series:    make(map[string][]string),
		Instances: make(map[string][]string),
		Meta:      make(map[string]restree.InstanceMeta),
		Bytes:     make(map[string][]byte),
		Stored:    make(map[string][]string),
	}
}

func (f *FakeClient) ListStudies(ctx context.Context, patientID string) ([]string, error) {
	return f.Studies[patientID], nil
}

func (f *FakeClient) ListSeries(ctx context.Context, studyID string) ([]string, error) {
	return f.Series[studyID], nil
}

func (f *FakeClient) ListInstances(ctx context.Context, seriesID string) ([]string, error) {
	return f.Instances[seriesID], nil
}

func (f *FakeClient) GetMetadata(ctx context.Context, instanceID string) (restree.InstanceMeta, error) {
	meta, ok := f.Meta[instanceID]
	if !ok {
		return restree.InstanceMeta{}, fmt.Errorf("no metadata seeded for %s", instanceID)
	}
	return meta, nil
}

func (f *FakeClient) GetDicomBytes(ctx context.Context, instanceID string) ([]byte, error) {
	raw, ok := f.Bytes[instanceID]
	if !ok {
		return nil, fmt.Errorf("no bytes seeded for %s", instanceID)
	}
	return raw, nil
}

func (f *FakeClient) SubmitInstance(ctx context.Context, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NextSubmittedID++
	id := fmt.Sprintf("submitted-%d", f.NextSubmittedID)
	f.Submitted = append(f.Submitted, id)
	return id, nil
}

func (f *FakeClient) StoreToModality(ctx context.Context, destinationName string, instanceIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stored[destinationName] = append(f.Stored[destinationName], instanceIDs...)
	return nil
}

func (f *FakeClient) BulkDelete(ctx context.Context, instanceIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, instanceIDs...)
	return nil
}

func (f *FakeClient) Log(level, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Logs = append(f.Logs, level+": "+msg)
}

var _ Client = (*FakeClient)(nil)
