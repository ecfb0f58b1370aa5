package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/module"
	"github.com/oriongate/dicomdispatch/pkg/logger"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one module registry crawl and print what loaded",
	Long: `crawl reads the main configuration once, discovers every module it
names, attempts to load each, and prints the resulting registry snapshot.
Useful for checking a module deployment before starting serve.`,
	RunE: runCrawl,
}

func runCrawl(cmd *cobra.Command, args []string) error {
	appCfg, err := config.LoadAppConfig(appConfigPath)
	if err != nil {
		return fmt.Errorf("loading app config: %w", err)
	}
	log := logger.New(appCfg.Log)

	mainCfg := config.NewLoader(appCfg.MainConfigPath)
	if err := mainCfg.Refresh(); err != nil {
		return fmt.Errorf("loading main config: %w", err)
	}
	cfg, _ := mainCfg.Current()

	registry := module.NewRegistry(module.NewProcessLoader(log), log)
	if err := registry.Crawl(context.Background(), cfg, mainCfg.Dir()); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	for _, desc := range registry.Snapshot() {
		status := "loaded"
		if !desc.Loaded {
			status = "failed"
		}
		fmt.Printf("%-20s %-8s trigger=%-8s aet=%-12s dest=%s\n",
			desc.ID, status, desc.Config.TriggerLevel, desc.Config.CallingAET, desc.Config.DestinationName)
	}
	return nil
}
