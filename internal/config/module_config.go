package config

import (
	"github.com/oriongate/dicomdispatch/internal/resilience"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// ModuleConfig is the per-module configuration from spec.md §3: which
// resource granularity the module wants to trigger on, the symbol to
// resolve inside its code file, the AE it responds to, the destination
// it forwards output to, and optional positive/negative tag filters.
type ModuleConfig struct {
	TriggerLevel    restree.Level       `json:"TriggerLevel" validate:"required,oneof=Patient Study Series"`
	ClassName       string              `json:"ClassName" validate:"required"`
	CallingAET      string              `json:"CallingAET" validate:"required"`
	DestinationName string              `json:"DestinationName" validate:"required"`
	Filters         map[string][]string `json:"Filters,omitempty"`
	NegativeFilters map[string][]string `json:"NegativeFilters,omitempty"`
}

// LoadModuleConfig reads and validates a module's companion configuration
// file, returning its parsed form and the content hash of the bytes read.
func LoadModuleConfig(path string) (ModuleConfig, string, error) {
	var cfg ModuleConfig
	raw, err := decodeJSONC(path, &cfg)
	if err != nil {
		return ModuleConfig{}, "", resilience.Wrap(resilience.ConfigLoad, "module_config.load", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return ModuleConfig{}, "", resilience.Wrap(resilience.ConfigLoad, "module_config.validate", err)
	}
	return cfg, hashBytes(raw), nil
}
