package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"getudid/internal/config"
	"getudid/internal/slogutil"
	"getudid/internal/version"
)

var (
	// configFlag is an explicit config file (.json, .toml, .yaml)
	configFlag string
	// logLevelFlag overrides logging.level
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "getudid",
	Short: "getudid - read an iOS device's UDID over a local profile service",
	Long: `getudid serves a signed configuration profile on a loopback HTTP listener.
Installing the profile makes the device post its identity (UDID, IMEI, product,
OS version and serial number) back to the listener, which shows it on a status
page and in the activity log.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("getudid version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "",
		"Config file (default: .getudid/config.json in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Operator log level: debug, info, warn, error or off")
}

// loadConfig resolves the configuration.
// Precedence: --config file > .getudid/config.json > defaults.
func loadConfig() (*config.Config, error) {
	if configFlag != "" {
		return config.LoadFile(configFlag)
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(wd)
}

// cliLevel returns the --log-level override, or nil when unset.
func cliLevel() *slog.Level {
	if logLevelFlag == "" {
		return nil
	}
	level := slogutil.LevelFromString(logLevelFlag)
	return &level
}
