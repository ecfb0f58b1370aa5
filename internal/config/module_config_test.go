package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModuleConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "module.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadModuleConfigRejectsInvalidTriggerLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeModuleConfigFile(t, dir, `{
		"TriggerLevel": "Instance",
		"ClassName": "Anonymizer",
		"CallingAET": "MODALITY1",
		"DestinationName": "DOWNSTREAM"
	}`)

	_, _, err := LoadModuleConfig(path)
	assert.Error(t, err)
}

func TestLoadModuleConfigAcceptsValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeModuleConfigFile(t, dir, `{
		"TriggerLevel": "Series",
		"ClassName": "Anonymizer",
		"CallingAET": "MODALITY1",
		"DestinationName": "DOWNSTREAM",
		"Filters": {"Modality": ["^CT$"]},
		"NegativeFilters": {"StudyDescription": ["test"]}
	}`)

	cfg, hash, err := LoadModuleConfig(path)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Equal(t, "MODALITY1", cfg.CallingAET)
	assert.Equal(t, []string{"^CT$"}, cfg.Filters["Modality"])
}

func TestLoadModuleConfigMissingRequiredFieldFails(t *testing.T) {
	dir := t.TempDir()
	path := writeModuleConfigFile(t, dir, `{
		"TriggerLevel": "Series",
		"ClassName": "Anonymizer"
	}`)

	_, _, err := LoadModuleConfig(path)
	assert.Error(t, err, "CallingAET and DestinationName are required")
}
