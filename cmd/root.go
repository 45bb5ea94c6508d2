package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mozilla-conduit/review/internal/config"
	"github.com/mozilla-conduit/review/internal/logger"
)

var (
	// Global flags
	verbosity int
	quiet     bool
	jsonOut   bool

	// cfg holds the loaded configuration
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "moz-review",
	Short: "Submit commit stacks to Phabricator for review",
	Long: `moz-review turns a range of local git commits into a stack of
Phabricator revisions, one revision per commit, and keeps the two sides in
sync across amendments, rebases and reorderings.

Each submitted commit is bound to its revision through a Differential
Revision line in the commit message, so rerunning submit updates existing
revisions instead of creating duplicates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !GetQuiet() {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase output verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output logs in JSON format")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = &config.Config{}
	}

	if !rootCmd.PersistentFlags().Changed("verbose") && cfg.Output.Verbose {
		verbosity = 1
	}
	if !rootCmd.PersistentFlags().Changed("quiet") {
		quiet = cfg.Output.Quiet
	}
	if !rootCmd.PersistentFlags().Changed("json") {
		jsonOut = cfg.Output.JSON
	}

	logger.Init(logger.Config{
		Verbosity: verbosity,
		Quiet:     quiet,
		JSON:      jsonOut,
	})

	if verbosity > 0 && config.GetConfigFilePath() != "" {
		logger.Debug().Str("path", config.GetConfigFilePath()).Msg("Using config file")
	}
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quiet
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonOut
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	if cfg == nil {
		cfg, _ = config.Load()
	}
	return cfg
}
