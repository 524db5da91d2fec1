package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"getudid/internal/activity"
	"getudid/internal/config"
	"getudid/internal/controller"
	udiderrors "getudid/internal/errors"
	"getudid/internal/profile"
	"getudid/internal/server"
	"getudid/internal/slogutil"
)

var (
	serveBind    string
	servePort    int
	serveProfile string
	serveOpen    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the profile and wait for the device",
	Long: `Start the loopback listener and print the activity log until interrupted.

Open http://<bind>:<port>/install-profile on the device (or pass --open to open
it in the local browser). After the profile is installed the device posts its
identity to /udid and is redirected to /success.

Examples:
  getudid serve
  getudid serve --port 8080 --profile ./GetUDID.mobileconfig
  getudid serve --open`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "Address to bind to (default 127.0.0.1)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default 2511)")
	serveCmd.Flags().StringVar(&serveProfile, "profile", "", "Path to the configuration profile to serve")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false, "Open the install-profile URL in the browser")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return udiderrors.New(udiderrors.ConfigInvalid, "invalid configuration", err)
	}

	factory := slogutil.NewLoggerFactory(cfg, cliLevel())
	defer factory.Close()
	logger := factory.ServerLogger()

	log := activity.New(activity.Banner, logger)
	entries, cancelEntries := log.Subscribe()
	defer cancelEntries()
	for _, e := range log.Entries() {
		fmt.Fprintln(cmd.OutOrStdout(), e)
	}

	artifact := profile.NewFileSource(cfg.Profile.Path, cfg.Profile.FileName)
	srv := server.New(cfg.Server, artifact, log, logger)
	ctrl := controller.New(srv, controller.WithLogger(logger))

	states, cancelStates := srv.Subscribe()
	defer cancelStates()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	if err := ctrl.StartServer(); err != nil {
		drain(cmd, entries)
		return err
	}
	logger.Info("Serving profile", "url", srv.URL(), "profile", artifact.Path())

	if serveOpen {
		ctrl.InstallProfile()
	}

	for {
		select {
		case e := <-entries:
			fmt.Fprintln(cmd.OutOrStdout(), e)
		case st := <-states:
			if st.Status == server.StatusError {
				drain(cmd, entries)
				return udiderrors.New(udiderrors.TransportFailed, "listener failed", nil)
			}
		case sig := <-shutdown:
			logger.Info("Received shutdown signal", "signal", sig.String())
			ctrl.StopServer()
			drain(cmd, entries)
			return nil
		}
	}
}

// applyServeFlags overlays explicitly set flags onto cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.Server.Bind = serveBind
	}
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("profile") {
		cfg.Profile.Path = serveProfile
	}
}

// drain prints entries that are already buffered.
func drain(cmd *cobra.Command, entries <-chan string) {
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), e)
		default:
			return
		}
	}
}
