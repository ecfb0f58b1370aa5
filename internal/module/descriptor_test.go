package module

import (
	"context"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

func TestDescriptorCodeOnlyReloadKeepsConfig(t *testing.T) {
	dir := t.TempDir()
	codePath, configPath := writeModule(t, dir, "mod1", sampleModuleConfig)

	loader := NewFakeLoader()
	desc := newDescriptor("mod1", codePath, configPath, loader, testLogger())
	require.NoError(t, desc.load(context.Background()))
	assert.Equal(t, 1, loader.Loads)

	require.NoError(t, desc.checkUpdate(context.Background()))
	assert.Equal(t, 1, loader.Loads, "no file changed, checkUpdate must be a no-op")

	require.NoError(t, os.WriteFile(codePath, []byte("#!/bin/sh\necho changed\n"), fs.FileMode(0o755)))
	require.NoError(t, desc.checkUpdate(context.Background()))
	assert.Equal(t, 2, loader.Loads, "a changed code hash must trigger a reload")
	assert.Equal(t, restree.LevelSeries, desc.Config.TriggerLevel, "code-only reload must not touch the parsed config")
}

func TestDescriptorProcessDelegatesToImplementation(t *testing.T) {
	dir := t.TempDir()
	codePath, configPath := writeModule(t, dir, "mod1", sampleModuleConfig)

	loader := NewFakeLoader()
	desc := newDescriptor("mod1", codePath, configPath, loader, testLogger())
	require.NoError(t, desc.load(context.Background()))

	files := restree.Files{
		Level: restree.LevelSeries,
		Studies: []restree.StudyFiles{{
			ID: "study1",
			Series: []restree.SeriesFiles{{
				ID:        "series1",
				Instances: []dicom.Object{&dicom.TagMapObject{Raw: []byte("abc")}},
			}},
		}},
	}

	out, err := desc.Process(context.Background(), files, "REMOTE1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []byte("abc"), out[0].Bytes())
}

func TestDescriptorUnloadedProcessIsNoOp(t *testing.T) {
	dir := t.TempDir()
	codePath, configPath := writeModule(t, dir, "mod1", sampleModuleConfig)

	loader := NewFakeLoader()
	loader.FailFor[codePath] = true
	desc := newDescriptor("mod1", codePath, configPath, loader, testLogger())
	require.Error(t, desc.load(context.Background()))
	assert.False(t, desc.Loaded)

	out, err := desc.Process(context.Background(), restree.Files{}, "REMOTE1")
	require.NoError(t, err)
	assert.Nil(t, out)
}
