// Package cmd provides the command-line interface for boxrender with
// configuration from multiple sources.
//
// Configuration System:
//
//	The CLI reads configuration from several sources with clear precedence:
//	1. Command-line flags (--port, --log-level, etc.) - highest priority
//	2. Individual environment variables (RENDERER_SERVER_PORT, etc.)
//	3. The configuration file named by --config or RENDERER_CONFIG_FILE
//	4. .boxrender.yml in the working directory - lowest priority
//
// Environment Variables:
//
//	RENDERER_CONFIG_FILE: Path to a custom configuration file
//	RENDERER_SERVER_VERIFY_HOSTNAME: Only serve renders for this host
//	RENDERER_SERVER_VERIFY_PATH: Only serve renders on this path
//	RENDERER_SERVER_FALLBACK_TOKEN: GitHub token used when a request has none
//	And every other key following the RENDERER_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/boxrender/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boxrender",
	Short: "Render sing-box configurations from gist-hosted manifests",
	Long: `boxrender assembles sing-box client configurations from a manifest of
templates and resources kept in a GitHub gist or a local directory.

A render picks a template for the client's sing-box version, pulls in the
resources the template references, filters and renames their outbounds and
endpoints, and appends them to the template and its selector groups. When a
remote resource is unavailable the last good copy from the cache is used.

Quick Start:
  boxrender serve                                  Serve renders over HTTP
  boxrender render --manifest config.json          Render once to stdout
  boxrender cache key https://example.com/a.json   Print a cache key
  boxrender version                                Show version information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .boxrender.yml, can also use RENDERER_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points viper at the configuration file and enables
// RENDERER_ prefixed environment overrides for every registered key.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".boxrender")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.SetDefaults()

	// A missing file is fine; defaults and the environment still apply
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
