// Package cmd implements fluidml-run's cobra command tree, configured
// through viper so flags, a config file, and environment variables all
// resolve through one precedence chain.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "fluidml-run",
	Short: "Run an example fluidml flow",
	Long: `fluidml-run drives the llmreview example flow: an ingest task
publishes a text artifact, an LLM review task sends it to the Claude API
and publishes the response. It demonstrates wiring a Flow against a
chosen results-store backend from the command line.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fluidml.yaml)")
	rootCmd.PersistentFlags().String("store", "memory", "results store backend: memory, localfile, or sqlite")
	rootCmd.PersistentFlags().String("base-dir", "./fluidml-data", "base directory for the localfile store")
	rootCmd.PersistentFlags().String("sqlite-path", "./fluidml.db", "database file for the sqlite store")
	rootCmd.PersistentFlags().String("project", "fluidml-run", "project namespace for the localfile store")
	rootCmd.PersistentFlags().Int("resources", 1, "number of worker resources to run with")
	rootCmd.PersistentFlags().String("force", "", "force directive: empty, \"all\", \"<task>\", or \"<task>+\"")

	_ = v.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("fluidml")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("FLUIDML")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintf(os.Stderr, "fluidml-run: reading config: %v\n", err)
		}
	}
}
