// Package controller holds the user-facing actions: start, stop, test and
// install-profile. Each action reports its outcome to the activity log.
package controller

import (
	"context"
	"log/slog"

	"github.com/pkg/browser"

	"getudid/internal/activity"
	"getudid/internal/server"
	"getudid/internal/slogutil"
)

// URLOpener opens url in the user's browser.
type URLOpener func(url string) error

// Controller drives one Server on behalf of the presentation layer.
type Controller struct {
	server   *server.Server
	activity *activity.Log
	open     URLOpener
	logger   *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithOpener replaces the browser opener.
func WithOpener(open URLOpener) Option {
	return func(c *Controller) { c.open = open }
}

// WithLogger sets the operator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// New returns a controller for srv. Actions append to the server's activity log.
func New(srv *server.Server, opts ...Option) *Controller {
	c := &Controller{
		server:   srv,
		activity: srv.Activity(),
		open:     browser.OpenURL,
		logger:   slogutil.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Server returns the controlled server.
func (c *Controller) Server() *server.Server {
	return c.server
}

// StartServer starts the listener. A bind failure is already reflected in the
// status and the activity log; it is returned for callers that want to exit.
func (c *Controller) StartServer() error {
	return c.server.Start()
}

// StopServer stops the listener if it is running.
func (c *Controller) StopServer() {
	if !c.server.Running() {
		return
	}
	c.server.Stop()
}

// Test probes the server's own ping endpoint and reports whether it answered.
func (c *Controller) Test(ctx context.Context) bool {
	if !c.server.Running() {
		c.activity.Append("Test fail! Server not started yet.")
		return false
	}

	url := c.server.EndpointURL(server.EndpointPing)
	if err := c.server.Probe(ctx); err != nil {
		c.logger.Warn("Ping failed", "url", url, "error", err)
		c.activity.Append("Ping to " + url + " failed!")
		return false
	}
	c.activity.Append("Ping to " + url + " successful!")
	return true
}

// InstallProfile opens the install-profile URL in the browser and marks an
// installation as in progress.
func (c *Controller) InstallProfile() bool {
	if !c.server.Running() {
		c.activity.Append("Server not started yet.")
		return false
	}

	url := c.server.EndpointURL(server.EndpointInstallProfile)
	if err := c.open(url); err != nil {
		c.logger.Warn("Browser open failed", "url", url, "error", err)
		c.activity.Append("Could not open browser with URL: " + url)
		return false
	}
	c.activity.Append("Opening browser with URL: " + url)
	c.server.SetInstalling(true)
	return true
}
