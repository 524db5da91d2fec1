package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"getudid/internal/config"
	"getudid/internal/paths"
)

var (
	configFormat string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage getudid configuration",
	Long:  "View and create getudid configuration stored in .getudid/config.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults and the config file are applied.

Examples:
  getudid config show
  getudid config show --format toml
  getudid config show --config ./getudid.yaml --format yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration.

With --format json the file is .getudid/config.json, which is loaded automatically.
With --format toml the file is getudid.toml; pass it with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "json", "Output format (json, toml, yaml)")
	configInitCmd.Flags().StringVar(&configFormat, "format", "json", "File format (json, toml)")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := encodeConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func encodeConfig(cfg *config.Config, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "toml":
		return cfg.EncodeTOML()
	case "yaml":
		return cfg.EncodeYAML()
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg := config.DefaultConfig()

	var target string
	switch configFormat {
	case "json":
		target = paths.GetConfigPath(wd)
	case "toml":
		target = filepath.Join(wd, "getudid.toml")
	default:
		return fmt.Errorf("unsupported format: %s", configFormat)
	}

	if _, err := os.Stat(target); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", target)
	}

	if configFormat == "json" {
		if err := cfg.Save(wd); err != nil {
			return err
		}
	} else {
		data, err := cfg.EncodeTOML()
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
	return nil
}
