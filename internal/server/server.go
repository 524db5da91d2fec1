// Package server is the embedded loopback HTTP listener that serves the
// configuration profile and receives the identity payload a device posts back.
//
// It speaks just enough HTTP/1.1 for four fixed routes: each accepted
// connection is read once, routed, answered with a single write and closed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"getudid/internal/activity"
	"getudid/internal/config"
	udiderrors "getudid/internal/errors"
	"getudid/internal/identity"
	"getudid/internal/profile"
	"getudid/internal/slogutil"
	"getudid/internal/version"
)

const stateSubscriberBuffer = 16

// Server owns the listening socket and the state shared by connection handlers.
type Server struct {
	config    config.ServerConfig
	artifacts profile.Source
	activity  *activity.Log
	logger    *slog.Logger
	now       func() time.Time

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu         sync.Mutex
	ln         net.Listener
	loopDone   chan struct{}
	status     Status
	installing bool
	record     *identity.Record
	subs       map[int]chan State
	nextSub    int
}

// New creates a stopped server.
func New(cfg config.ServerConfig, artifacts profile.Source, log *activity.Log, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if log == nil {
		log = activity.New("", logger)
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = config.DefaultConfig().Server.MaxRequestBytes
	}
	if cfg.ProbeTimeoutMs <= 0 {
		cfg.ProbeTimeoutMs = config.DefaultConfig().Server.ProbeTimeoutMs
	}
	return &Server{
		config:    cfg,
		artifacts: artifacts,
		activity:  log,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[int]chan State),
	}
}

// Activity returns the activity log the server appends to.
func (s *Server) Activity() *activity.Log {
	return s.activity
}

// Start binds the listener and begins accepting connections.
// It is a no-op when already started. A bind failure moves the server to
// StatusError and is returned as BIND_FAILED.
func (s *Server) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil
	}

	addr := net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.applyLocked(eventInitFailed)
		s.activity.Append("Error Initializing Server: " + err.Error())
		s.logger.Error("Listener failed to initialize", "addr", addr, "error", err)
		return udiderrors.New(udiderrors.BindFailed, "listen "+addr, err)
	}

	done := make(chan struct{})
	s.ln, s.loopDone = ln, done
	s.applyLocked(eventReady)
	s.activity.Append(fmt.Sprintf("Server started with port %d", listenPort(ln)))
	s.logger.Info("Listener ready", "addr", ln.Addr().String())

	go s.acceptLoop(ln, done)
	return nil
}

// Stop closes the listener and waits for the accept loop to exit. In-flight
// connection handlers finish their single response on their own. Stopping a
// stopped server changes nothing and logs nothing.
func (s *Server) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	ln, done := s.ln, s.loopDone
	s.ln, s.loopDone = nil, nil
	if ln == nil {
		if s.status != StatusStopped {
			s.applyLocked(eventReset)
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := ln.Close(); err != nil {
		s.logger.Warn("Listener close failed", "error", err)
	}
	<-done
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	for {
		conn, err := ln.Accept()
		if err == nil {
			go s.handleConn(conn)
			continue
		}

		s.mu.Lock()
		if s.ln != ln {
			s.applyLocked(eventCancelled)
			s.activity.Append("Server stopped")
			s.logger.Info("Listener cancelled")
		} else {
			s.ln, s.loopDone = nil, nil
			_ = ln.Close()
			s.applyLocked(eventFailed)
			s.activity.Append("Server error: " + err.Error())
			s.logger.Error("Listener failed", "error", errors.Join(udiderrors.New(udiderrors.TransportFailed, "accept", nil), err))
		}
		s.mu.Unlock()
		return
	}
}

// applyLocked moves the status machine and publishes the new state. s.mu must be held.
func (s *Server) applyLocked(ev transportEvent) {
	prev := s.status
	s.status = transition(prev, ev)
	s.logger.Debug("Status transition", "event", ev.String(), "from", prev.String(), "to", s.status.String())
	s.publishLocked()
}

func (s *Server) publishLocked() {
	st := s.stateLocked()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

func (s *Server) stateLocked() State {
	return State{
		Status:     s.status,
		Running:    s.status == StatusStarted,
		Installing: s.installing,
		Addr:       s.urlLocked(),
	}
}

// State returns a snapshot of the observable state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Status returns the current lifecycle status.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Running reports whether the listener is accepting connections.
func (s *Server) Running() bool {
	return s.Status() == StatusStarted
}

// Subscribe returns a channel of state snapshots published on every change,
// and a cancel func. Snapshots are dropped for a subscriber that falls behind.
func (s *Server) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan State, stateSubscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// Installing reports whether a profile installation is in progress.
func (s *Server) Installing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installing
}

// SetInstalling sets the installation-in-progress flag.
func (s *Server) SetInstalling(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installing == v {
		return
	}
	s.installing = v
	s.publishLocked()
}

// Record returns the most recently extracted identity.
func (s *Server) Record() (identity.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return identity.Record{}, false
	}
	return *s.record, true
}

// storeRecord replaces the current record, clears the installing flag and
// appends the record summary, all under one lock.
func (s *Server) storeRecord(rec identity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = &rec
	s.installing = false
	s.activity.Append(rec.Summary())
	s.publishLocked()
}

// Addr returns the listener address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// URL returns the advertised base URL, e.g. http://127.0.0.1:2511.
// While listening on an ephemeral port the bound port is used.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urlLocked()
}

func (s *Server) urlLocked() string {
	port := s.config.Port
	if s.ln != nil {
		port = listenPort(s.ln)
	}
	return "http://" + net.JoinHostPort(s.config.Bind, strconv.Itoa(port))
}

// EndpointURL returns the advertised URL of e.
func (s *Server) EndpointURL(e Endpoint) string {
	return s.URL() + e.Path()
}

// Probe sends one GET to the ping endpoint. Any HTTP response counts as
// reachable; only transport failures and the probe timeout are errors.
func (s *Server) Probe(ctx context.Context) error {
	return ProbeURL(ctx, s.EndpointURL(EndpointPing), s.probeTimeout())
}

// Test probes in the background and reports reachability to done.
func (s *Server) Test(done func(ok bool)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.probeTimeout())
		defer cancel()
		err := s.Probe(ctx)
		if err != nil {
			s.logger.Warn("Probe failed", "error", err)
		}
		done(err == nil)
	}()
}

func (s *Server) probeTimeout() time.Duration {
	return time.Duration(s.config.ProbeTimeoutMs) * time.Millisecond
}

// ProbeURL issues a GET to url with the given timeout and reports whether any
// HTTP response arrived. Redirects are not followed.
func ProbeURL(ctx context.Context, url string, timeout time.Duration) error {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return udiderrors.New(udiderrors.ProbeFailed, "build probe request", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return udiderrors.New(udiderrors.ProbeFailed, "probe "+url, err)
	}
	_ = resp.Body.Close()
	return nil
}

func listenPort(ln net.Listener) int {
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
