package cmd

import (
	"github.com/spf13/cobra"
)

var appConfigPath string

var rootCmd = &cobra.Command{
	Use:   "dicomdispatch",
	Short: "DICOM event dispatcher with hot-reloadable modules",
	Long: `dicomdispatch watches an archive for stable series/study/patient
events, filters and routes matching resources through out-of-process
modules described by a hot-reloadable module registry, and re-submits
whatever a module returns.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&appConfigPath, "config", "config.yaml", "path to the process configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(validateModuleCmd)
}
