package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/module"
	"github.com/oriongate/dicomdispatch/pkg/logger"
)

var validateModuleCmd = &cobra.Command{
	Use:   "validate-module <code-file>",
	Short: "Validate a single module's configuration and attempt to load its code",
	Long: `validate-module locates the companion configuration file for the
given module code file (same basename, ".json" extension), parses and
validates it, then attempts to start and initialize the module process,
the same way the registry would during a crawl. It reports success or
the first error without registering the module anywhere.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidateModule,
}

func runValidateModule(cmd *cobra.Command, args []string) error {
	codePath := args[0]
	configPath := module.ConfigPathFor(codePath)
	log := logger.New(logger.Config{Level: "info", Format: "text", Output: "stderr"})

	cfg, _, err := config.LoadModuleConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Printf("configuration valid: trigger=%s aet=%s dest=%s\n", cfg.TriggerLevel, cfg.CallingAET, cfg.DestinationName)

	loader := module.NewProcessLoader(log)
	impl, err := loader.Load(context.Background(), codePath, cfg)
	if err != nil {
		return fmt.Errorf("code failed to load: %w", err)
	}
	defer impl.Close()

	fmt.Println("module loaded and initialized successfully")
	return nil
}
