package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"getudid/internal/server"
)

var (
	testBind    string
	testPort    int
	testTimeout time.Duration
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Ping a running getudid server",
	Long: `Send one liveness probe to a running server. Any HTTP answer counts as reachable.

Examples:
  getudid test
  getudid test --port 8080 --timeout 500ms`,
	RunE: runTest,
}

func init() {
	testCmd.Flags().StringVar(&testBind, "bind", "", "Server address (default from config)")
	testCmd.Flags().IntVar(&testPort, "port", 0, "Server port (default from config)")
	testCmd.Flags().DurationVar(&testTimeout, "timeout", 0, "Probe timeout (default from config)")

	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bind, port := cfg.Server.Bind, cfg.Server.Port
	timeout := time.Duration(cfg.Server.ProbeTimeoutMs) * time.Millisecond
	if cmd.Flags().Changed("bind") {
		bind = testBind
	}
	if cmd.Flags().Changed("port") {
		port = testPort
	}
	if cmd.Flags().Changed("timeout") {
		timeout = testTimeout
	}

	url := "http://" + net.JoinHostPort(bind, strconv.Itoa(port)) + server.EndpointPing.Path()
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if err := server.ProbeURL(ctx, url, timeout); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Ping to %s failed!\n", url)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ping to %s successful!\n", url)
	return nil
}
