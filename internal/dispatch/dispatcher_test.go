package dispatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/dicomdispatch/internal/archive"
	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/filter"
	"github.com/oriongate/dicomdispatch/internal/module"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func writeMainConfig(t *testing.T, dir string, autoRemove bool) *config.Loader {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	content := `{"ModuleLoadingHeuristic":"mods/*.code","AutoRemove":` + boolStr(autoRemove) + `,"AutoReloadEach":60}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	loader := config.NewLoader(path)
	require.NoError(t, loader.Refresh())
	return loader
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// seedInstance wires one instance's full chain (series -> study -> patient
// lookups are only consulted at the levels the test actually expands) plus
// its metadata and dicom bytes into a FakeClient.
func seedInstance(client *archive.FakeClient, seriesID, instanceID string, meta restree.InstanceMeta, tags map[dicom.Tag]string) {
	client.Instances[seriesID] = append(client.Instances[seriesID], instanceID)
	client.Meta[instanceID] = meta
	client.Bytes[instanceID] = dicom.Encode(tags)
}

func newTestDispatcher(t *testing.T, client *archive.FakeClient, reg *module.Registry, loader *config.Loader) *Dispatcher {
	t.Helper()
	return New(client, reg, filter.New(0, silentLogger()), dicom.TagMapParser{}, loader, silentLogger())
}

func TestProcessEventEchoSkipsModulesAndDeletesOnPatientAutoRemove(t *testing.T) {
	dir := t.TempDir()
	loader := writeMainConfig(t, dir, true)

	client := archive.NewFakeClient()
	client.Studies["patient1"] = []string{"study1"}
	client.Series["study1"] = []string{"series1"}
	seedInstance(client, "series1", "I1", restree.InstanceMeta{Origin: restree.OriginPlugins}, map[dicom.Tag]string{dicom.TagModality: "CT"})

	reg := module.NewRegistry(module.NewFakeLoader(), silentLogger())
	d := newTestDispatcher(t, client, reg, loader)

	err := d.ProcessEvent(context.Background(), StableEvent(EventStablePatient, "patient1"))
	require.NoError(t, err)

	assert.Empty(t, client.Submitted, "an echo cycle must never invoke a module")
	assert.Equal(t, []string{"I1"}, client.Deleted)
}

func TestProcessEventAETMismatchSkipsModules(t *testing.T) {
	dir := t.TempDir()
	loader := writeMainConfig(t, dir, true)

	client := archive.NewFakeClient()
	seedInstance(client, "series1", "I1", restree.InstanceMeta{Origin: "Network", CalledAET: "AET_B", RemoteAET: "REMOTE"}, map[dicom.Tag]string{dicom.TagModality: "CT"})

	fakeLoader := module.NewFakeLoader()
	reg := module.NewRegistry(fakeLoader, silentLogger())
	writeModuleFiles(t, dir, "echo", `{"TriggerLevel":"Series","ClassName":"Echo","CallingAET":"AET_A","DestinationName":"dest1"}`)
	mainCfg, _ := loader.Current()
	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	d := newTestDispatcher(t, client, reg, loader)
	err := d.ProcessEvent(context.Background(), StableEvent(EventStableSeries, "series1"))
	require.NoError(t, err)

	assert.Empty(t, client.Submitted, "AET mismatch must not invoke the module")
}

func TestProcessEventSingleModulePassthrough(t *testing.T) {
	dir := t.TempDir()
	loader := writeMainConfig(t, dir, true)

	client := archive.NewFakeClient()
	seedInstance(client, "series1", "I1", restree.InstanceMeta{Origin: "Network", CalledAET: "AET_A", RemoteAET: "REMOTE"}, map[dicom.Tag]string{dicom.TagModality: "CT"})

	fakeLoader := module.NewFakeLoader()
	reg := module.NewRegistry(fakeLoader, silentLogger())
	writeModuleFiles(t, dir, "echo", `{"TriggerLevel":"Series","ClassName":"Echo","CallingAET":"AET_A","DestinationName":"dest1"}`)
	mainCfg, _ := loader.Current()
	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	d := newTestDispatcher(t, client, reg, loader)
	err := d.ProcessEvent(context.Background(), StableEvent(EventStableSeries, "series1"))
	require.NoError(t, err)

	require.Len(t, client.Submitted, 1)
	assert.Equal(t, client.Submitted, client.Stored["dest1"])
}

func TestProcessEventPositiveFilterRejectsAndSkipsModule(t *testing.T) {
	dir := t.TempDir()
	loader := writeMainConfig(t, dir, true)

	client := archive.NewFakeClient()
	seedInstance(client, "series1", "I1", restree.InstanceMeta{Origin: "Network", CalledAET: "AET_A", RemoteAET: "REMOTE"}, map[dicom.Tag]string{dicom.TagModality: "CT"})

	fakeLoader := module.NewFakeLoader()
	reg := module.NewRegistry(fakeLoader, silentLogger())
	writeModuleFiles(t, dir, "mr-only", `{"TriggerLevel":"Series","ClassName":"Echo","CallingAET":"AET_A","DestinationName":"dest1","Filters":{"Modality":["^MR$"]}}`)
	mainCfg, _ := loader.Current()
	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	d := newTestDispatcher(t, client, reg, loader)
	err := d.ProcessEvent(context.Background(), StableEvent(EventStableSeries, "series1"))
	require.NoError(t, err)

	assert.Empty(t, client.Submitted, "CT must not pass a Modality=^MR$ positive filter")
}

func TestProcessEventNegativeFilterWins(t *testing.T) {
	dir := t.TempDir()
	loader := writeMainConfig(t, dir, true)

	client := archive.NewFakeClient()
	seedInstance(client, "series1", "I1", restree.InstanceMeta{Origin: "Network", CalledAET: "AET_A", RemoteAET: "REMOTE"},
		map[dicom.Tag]string{dicom.TagModality: "MR", dicom.TagSeriesDescription: "noisy"})

	fakeLoader := module.NewFakeLoader()
	reg := module.NewRegistry(fakeLoader, silentLogger())
	writeModuleFiles(t, dir, "mr-quiet", `{"TriggerLevel":"Series","ClassName":"Echo","CallingAET":"AET_A","DestinationName":"dest1",`+
		`"Filters":{"Modality":["^MR$"]},"NegativeFilters":{"SeriesDescription":["noisy"]}}`)
	mainCfg, _ := loader.Current()
	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	d := newTestDispatcher(t, client, reg, loader)
	err := d.ProcessEvent(context.Background(), StableEvent(EventStableSeries, "series1"))
	require.NoError(t, err)

	assert.Empty(t, client.Submitted, "a matching negative filter must reject despite the positive match")
}

func TestProcessEventModuleOutputSubmittedAndStored(t *testing.T) {
	dir := t.TempDir()
	loader := writeMainConfig(t, dir, false)

	client := archive.NewFakeClient()
	seedInstance(client, "series1", "I1", restree.InstanceMeta{Origin: "Network", CalledAET: "AET_A", RemoteAET: "REMOTE"}, map[dicom.Tag]string{dicom.TagModality: "CT"})

	fakeLoader := module.NewFakeLoader()
	fakeLoader.Process = func(ctx context.Context, files restree.Files, remoteAET string) ([]dicom.Object, error) {
		return []dicom.Object{
			&dicom.TagMapObject{Raw: dicom.Encode(map[dicom.Tag]string{dicom.TagModality: "SC"})},
			&dicom.TagMapObject{Raw: dicom.Encode(map[dicom.Tag]string{dicom.TagModality: "SC"})},
		}, nil
	}
	reg := module.NewRegistry(fakeLoader, silentLogger())
	writeModuleFiles(t, dir, "synth", `{"TriggerLevel":"Series","ClassName":"Synth","CallingAET":"AET_A","DestinationName":"dest1"}`)
	mainCfg, _ := loader.Current()
	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	d := newTestDispatcher(t, client, reg, loader)
	err := d.ProcessEvent(context.Background(), StableEvent(EventStableSeries, "series1"))
	require.NoError(t, err)

	assert.Len(t, client.Submitted, 2)
	assert.ElementsMatch(t, client.Submitted, client.Stored["dest1"])
}

func TestProcessEventCleanupDeletesEveryExternalInstanceOnce(t *testing.T) {
	dir := t.TempDir()
	loader := writeMainConfig(t, dir, true)

	client := archive.NewFakeClient()
	client.Studies["patient1"] = []string{"study1"}
	client.Series["study1"] = []string{"series1", "series2"}
	seedInstance(client, "series1", "I1", restree.InstanceMeta{Origin: "Network", CalledAET: "AET_X", RemoteAET: "REMOTE"}, map[dicom.Tag]string{dicom.TagModality: "CT"})
	seedInstance(client, "series2", "I2", restree.InstanceMeta{Origin: "Network", CalledAET: "AET_X", RemoteAET: "REMOTE"}, map[dicom.Tag]string{dicom.TagModality: "CT"})

	reg := module.NewRegistry(module.NewFakeLoader(), silentLogger())
	d := newTestDispatcher(t, client, reg, loader)

	err := d.ProcessEvent(context.Background(), StableEvent(EventStablePatient, "patient1"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"I1", "I2"}, client.Deleted)
}

func writeModuleFiles(t *testing.T, dir, id, cfg string) {
	t.Helper()
	modsDir := filepath.Join(dir, "mods")
	require.NoError(t, os.MkdirAll(modsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modsDir, id+".json"), []byte(cfg), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modsDir, id+".code"), []byte("#!/bin/sh\n"), 0o755))
}
