package main

import (
	"multihop/common"
	"multihop/middleware"
	"multihop/structs"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	silent     bool
	hopFlags   []int

	cfg *structs.Config
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:          "multihop",
	Short:        "Lowest-latency multi-hop paths between measurement probes",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		applyLogLevel(debug, silent)

		loaded, err := middleware.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func defaultConfigPath() string {
	if path := os.Getenv("MULTIHOP_CONFIG"); path != "" {
		return path
	}
	return "multihop_config.toml"
}

func applyLogLevel(debug, silent bool) {
	switch {
	case debug:
		log.SetLevel(log.DebugLevel)
	case silent:
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// resolveHops prefers the --hops flag over the configured hop counts
func resolveHops(flags []int, configured []common.HopCount) []common.HopCount {
	if len(flags) == 0 {
		return configured
	}
	hops := make([]common.HopCount, len(flags))
	for i, h := range flags {
		hops[i] = common.HopCount(h)
	}
	return hops
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the toml configuration")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debugging")
	rootCmd.PersistentFlags().BoolVarP(&silent, "silent", "s", false, "Only log warnings and errors")
	rootCmd.MarkFlagsMutuallyExclusive("debug", "silent")
}
