package module

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func writeModule(t *testing.T, dir, id string, cfg string) (codePath, configPath string) {
	t.Helper()
	codePath = filepath.Join(dir, id+".code")
	configPath = filepath.Join(dir, id+".json")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), fs.FileMode(0o644)))
	require.NoError(t, os.WriteFile(codePath, []byte("#!/bin/sh\n"), fs.FileMode(0o755)))
	return codePath, configPath
}

const sampleModuleConfig = `{
  "TriggerLevel": "Series",
  "ClassName": "Anonymizer",
  "CallingAET": "MODALITY1",
  "DestinationName": "DOWNSTREAM"
}`

func TestRegistryCrawlLoadsNewModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "mod1", sampleModuleConfig)

	loader := NewFakeLoader()
	reg := NewRegistry(loader, testLogger())
	mainCfg := config.MainConfig{ModuleLoadingHeuristic: "*.code", AutoReloadEachSeconds: 5}

	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "mod1", snap[0].ID)
	assert.True(t, snap[0].Loaded)
	assert.Equal(t, 1, loader.Loads)
}

func TestRegistryCrawlIsolatesFailingModule(t *testing.T) {
	dir := t.TempDir()
	goodCode, _ := writeModule(t, dir, "good", sampleModuleConfig)
	badCode, _ := writeModule(t, dir, "bad", sampleModuleConfig)
	_ = goodCode

	loader := NewFakeLoader()
	loader.FailFor[badCode] = true
	reg := NewRegistry(loader, testLogger())
	mainCfg := config.MainConfig{ModuleLoadingHeuristic: "*.code", AutoReloadEachSeconds: 5}

	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	byID := make(map[string]*Descriptor)
	for _, d := range reg.Snapshot() {
		byID[d.ID] = d
	}
	require.Len(t, byID, 2)
	assert.True(t, byID["good"].Loaded)
	assert.False(t, byID["bad"].Loaded, "a module that fails to load must be tombstoned, not left half-loaded")
}

func TestRegistryCrawlPurgesRemovedModule(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "mod1", sampleModuleConfig)

	loader := NewFakeLoader()
	reg := NewRegistry(loader, testLogger())
	mainCfg := config.MainConfig{ModuleLoadingHeuristic: "*.code", AutoReloadEachSeconds: 5}

	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))
	require.Len(t, reg.Snapshot(), 1)

	require.NoError(t, os.Remove(filepath.Join(dir, "mod1.code")))
	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	assert.Empty(t, reg.Snapshot(), "a module whose code file disappeared from the glob must be purged from the registry")
}

func TestRegistryCrawlReloadsOnConfigHashChange(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "mod1", sampleModuleConfig)

	loader := NewFakeLoader()
	reg := NewRegistry(loader, testLogger())
	mainCfg := config.MainConfig{ModuleLoadingHeuristic: "*.code", AutoReloadEachSeconds: 5}

	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))
	assert.Equal(t, 1, loader.Loads)

	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))
	assert.Equal(t, 1, loader.Loads, "an unchanged module must not be reloaded")

	changed := `{
  "TriggerLevel": "Study",
  "ClassName": "Anonymizer",
  "CallingAET": "MODALITY1",
  "DestinationName": "DOWNSTREAM"
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod1.json"), []byte(changed), fs.FileMode(0o644)))
	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))
	assert.Equal(t, 2, loader.Loads, "a changed config hash must trigger a full reload")

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, restree.LevelStudy, snap[0].Config.TriggerLevel)
}

func TestRegistryCandidatesMatchLevelAndAET(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "series-mod", sampleModuleConfig)

	otherConfig := `{
  "TriggerLevel": "Study",
  "ClassName": "Other",
  "CallingAET": "MODALITY2",
  "DestinationName": "DOWNSTREAM"
}`
	writeModule(t, dir, "study-mod", otherConfig)

	loader := NewFakeLoader()
	reg := NewRegistry(loader, testLogger())
	mainCfg := config.MainConfig{ModuleLoadingHeuristic: "*.code", AutoReloadEachSeconds: 5}
	require.NoError(t, reg.Crawl(context.Background(), mainCfg, dir))

	matches := reg.Candidates(restree.LevelSeries, "MODALITY1")
	require.Len(t, matches, 1)
	assert.Equal(t, "series-mod", matches[0].ID)

	assert.Empty(t, reg.Candidates(restree.LevelSeries, "MODALITY2"))
	assert.Empty(t, reg.Candidates(restree.LevelPatient, "MODALITY1"))
}
