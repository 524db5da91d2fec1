package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"getudid/internal/activity"
	"getudid/internal/config"
	udiderrors "getudid/internal/errors"
	"getudid/internal/profile"
)

const udidBody = "--boundary\r\n" +
	"garbage<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" +
	"<!DOCTYPE plist PUBLIC \"-//Apple//DTD PLIST 1.0//EN\" \"http://www.apple.com/DTDs/PropertyList-1.0.dtd\">\n" +
	"<plist version=\"1.0\"><dict>" +
	"<key>UDID</key><string>ABC123</string>" +
	"<key>PRODUCT</key><string>iPhone14,2</string>" +
	"</dict></plist>\r\n--boundary--"

func testConfig() config.ServerConfig {
	cfg := config.DefaultConfig().Server
	cfg.Port = 0
	return cfg
}

func newTestServer(t *testing.T, src profile.Source) *Server {
	t.Helper()
	s := New(testConfig(), src, activity.New("", nil), nil)
	t.Cleanup(s.Stop)
	return s
}

func startTestServer(t *testing.T, src profile.Source) *Server {
	t.Helper()
	s := newTestServer(t, src)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

// roundTrip writes raw to the server and reads until the server closes.
func roundTrip(t *testing.T, s *Server, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(resp)
}

func parseResponse(t *testing.T, raw string) *http.Response {
	t.Helper()
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), nil)
	if err != nil {
		t.Fatalf("ReadResponse(%q): %v", raw, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasEntry(log *activity.Log, want string) bool {
	for _, e := range log.Entries() {
		if e == want {
			return true
		}
	}
	return false
}

func TestStartIsIdempotent(t *testing.T) {
	s := newTestServer(t, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	addr := s.Addr().String()
	if err := s.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if got := s.Addr().String(); got != addr {
		t.Errorf("second Start() rebound: %s != %s", got, addr)
	}
	if s.Status() != StatusStarted {
		t.Errorf("Status() = %v, want Started", s.Status())
	}

	started := 0
	for _, e := range s.Activity().Entries() {
		if strings.HasPrefix(e, "Server started with port ") {
			started++
		}
	}
	if started != 1 {
		t.Errorf("found %d start entries, want 1", started)
	}
}

func TestStopBeforeStart(t *testing.T) {
	s := newTestServer(t, nil)
	s.Stop()

	if s.Status() != StatusStopped {
		t.Errorf("Status() = %v, want Stopped", s.Status())
	}
	if n := s.Activity().Len(); n != 0 {
		t.Errorf("activity log has %d entries, want 0: %q", n, s.Activity().Entries())
	}
}

func TestStartStopRestart(t *testing.T) {
	s := newTestServer(t, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
	if s.Status() != StatusStopped {
		t.Fatalf("Status() after Stop = %v, want Stopped", s.Status())
	}
	if s.Addr() != nil {
		t.Error("Addr() should be nil after Stop")
	}
	if !hasEntry(s.Activity(), "Server stopped") {
		t.Errorf("missing stop entry: %q", s.Activity().Entries())
	}

	s.Stop()
	if err := s.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if !s.Running() {
		t.Error("Running() = false after restart")
	}
}

func TestStartBindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()

	cfg := testConfig()
	cfg.Port = occupied.Addr().(*net.TCPAddr).Port
	s := New(cfg, nil, activity.New("", nil), nil)
	t.Cleanup(s.Stop)

	err = s.Start()
	if udiderrors.CodeOf(err) != udiderrors.BindFailed {
		t.Fatalf("Start() error = %v, want BIND_FAILED", err)
	}
	if s.Status() != StatusError {
		t.Errorf("Status() = %v, want Error", s.Status())
	}
	entries := s.Activity().Entries()
	if len(entries) != 1 || !strings.HasPrefix(entries[0], "Error Initializing Server: ") {
		t.Errorf("entries = %q", entries)
	}

	s.Stop()
	if s.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %v, want Stopped", s.Status())
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	s := newTestServer(t, nil)
	ch, cancel := s.Subscribe()
	defer cancel()

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case st := <-ch:
		if st.Status != StatusStarted || !st.Running {
			t.Errorf("state = %+v, want Started", st)
		}
		if st.Addr != s.URL() {
			t.Errorf("state Addr = %q, want %q", st.Addr, s.URL())
		}
	case <-time.After(time.Second):
		t.Fatal("no state published on Start")
	}

	s.SetInstalling(true)
	select {
	case st := <-ch:
		if !st.Installing {
			t.Errorf("state = %+v, want Installing", st)
		}
	case <-time.After(time.Second):
		t.Fatal("no state published on SetInstalling")
	}
}

func TestUDIDSubmissionEndToEnd(t *testing.T) {
	s := startTestServer(t, nil)
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	s.SetInstalling(true)

	raw := roundTrip(t, s, "POST /udid HTTP/1.1\r\nHost: localhost\r\nContent-Length: "+
		strconv.Itoa(len(udidBody))+"\r\n\r\n"+udidBody)
	resp := parseResponse(t, raw)
	if resp.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/success" {
		t.Errorf("Location = %q, want /success", loc)
	}
	if resp.ContentLength != 0 {
		t.Errorf("Content-Length = %d, want 0", resp.ContentLength)
	}

	rec, ok := s.Record()
	if !ok {
		t.Fatal("no record stored")
	}
	if rec.UDID != "ABC123" || rec.Product != "iPhone14,2" || rec.Serial != "NULL" {
		t.Errorf("record = %+v", rec)
	}
	if !rec.ExtractedAt.Equal(fixed) {
		t.Errorf("ExtractedAt = %v, want %v", rec.ExtractedAt, fixed)
	}
	if s.Installing() {
		t.Error("Installing() should be cleared by a successful extraction")
	}
	if !hasEntry(s.Activity(), rec.Summary()) {
		t.Errorf("missing summary entry: %q", s.Activity().Entries())
	}

	page := parseResponse(t, roundTrip(t, s, "GET /success HTTP/1.1\r\n\r\n"))
	if page.StatusCode != http.StatusOK {
		t.Errorf("success status = %d, want 200", page.StatusCode)
	}
	if body := readBody(t, page); !strings.Contains(body, "ABC123") {
		t.Errorf("success page missing UDID:\n%s", body)
	}
}

func TestUDIDFailures(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantEntry string
	}{
		{
			name:      "wrong method",
			raw:       "GET /udid HTTP/1.1\r\n\r\n",
			wantEntry: "Can't parse data.",
		},
		{
			name:      "missing markers",
			raw:       "POST /udid HTTP/1.1\r\n\r\nno document here",
			wantEntry: "Can't parse data.",
		},
		{
			name:      "non-dictionary root",
			raw:       "POST /udid HTTP/1.1\r\n\r\n<?xml version=\"1.0\"?><plist version=\"1.0\"><string>x</string></plist>",
			wantEntry: "Can't parse data.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startTestServer(t, nil)

			resp := parseResponse(t, roundTrip(t, s, tt.raw))
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if body := readBody(t, resp); !strings.Contains(body, "Invalid!") {
				t.Errorf("body missing invalid marker:\n%s", body)
			}
			if !hasEntry(s.Activity(), tt.wantEntry) {
				t.Errorf("entries = %q, want %q", s.Activity().Entries(), tt.wantEntry)
			}
			if _, ok := s.Record(); ok {
				t.Error("failed submission stored a record")
			}
		})
	}
}

func TestUDIDDecodeError(t *testing.T) {
	s := startTestServer(t, nil)

	raw := "POST /udid HTTP/1.1\r\n\r\n<?xml version=\"1.0\"?><plist version=\"1.0\"><dict><key>UDID</key><string>ABC</dict></plist>"
	resp := parseResponse(t, roundTrip(t, s, raw))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	var found bool
	for _, e := range s.Activity().Entries() {
		if strings.HasPrefix(e, "Parse error: ") {
			found = true
		}
	}
	if !found {
		t.Errorf("entries = %q, want a Parse error entry", s.Activity().Entries())
	}
}

func TestUnknownPath(t *testing.T) {
	s := startTestServer(t, nil)

	raw := roundTrip(t, s, "GET /does-not-exist HTTP/1.1\r\n\r\n")
	if !strings.Contains(raw, "\r\nConnection: close\r\n") {
		t.Errorf("response missing Connection: close header:\n%q", raw)
	}
	resp := parseResponse(t, raw)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if !resp.Close {
		t.Error("response should close the connection")
	}
	if body := readBody(t, resp); !strings.Contains(body, "Invalid!") {
		t.Errorf("body missing invalid marker:\n%s", body)
	}
	if n := s.Activity().Len(); n != 1 {
		t.Errorf("unknown path should not be logged, entries = %q", s.Activity().Entries())
	}
}

func TestSuccessWithoutRecord(t *testing.T) {
	s := startTestServer(t, nil)

	resp := parseResponse(t, roundTrip(t, s, "GET /success/?from=test HTTP/1.1\r\n\r\n"))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "Invalid!") {
		t.Errorf("body missing invalid marker:\n%s", body)
	}
}

func TestInstallProfile(t *testing.T) {
	t.Run("artifact present", func(t *testing.T) {
		src := profile.Static{FileName: "GetUDID.mobileconfig", Data: []byte("<signed profile>")}
		s := startTestServer(t, src)

		resp := parseResponse(t, roundTrip(t, s, "GET /install-profile HTTP/1.1\r\n\r\n"))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != profile.ContentType {
			t.Errorf("Content-Type = %q", ct)
		}
		if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="GetUDID.mobileconfig"` {
			t.Errorf("Content-Disposition = %q", cd)
		}
		if body := readBody(t, resp); body != "<signed profile>" {
			t.Errorf("body = %q", body)
		}

		want := "The GetUDID.mobileconfig file has been sent to the user's browser. Please download and install it."
		waitFor(t, "sent entry", func() bool { return hasEntry(s.Activity(), want) })
	})

	t.Run("zero-length artifact", func(t *testing.T) {
		s := startTestServer(t, profile.Static{FileName: "GetUDID.mobileconfig", Data: []byte{}})

		resp := parseResponse(t, roundTrip(t, s, "GET /install-profile HTTP/1.1\r\n\r\n"))
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		if resp.ContentLength != 0 {
			t.Errorf("Content-Length = %d, want 0", resp.ContentLength)
		}
	})

	t.Run("artifact missing", func(t *testing.T) {
		src := profile.NewFileSource(t.TempDir()+"/missing.mobileconfig", "GetUDID.mobileconfig")
		s := startTestServer(t, src)

		resp := parseResponse(t, roundTrip(t, s, "GET /install-profile HTTP/1.1\r\n\r\n"))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
		if !hasEntry(s.Activity(), "Could not read GetUDID.mobileconfig") {
			t.Errorf("entries = %q", s.Activity().Entries())
		}
		if !s.Running() {
			t.Error("server stopped after a missing artifact")
		}
	})
}

func TestMalformedRequestLineIsDropped(t *testing.T) {
	s := startTestServer(t, nil)

	if raw := roundTrip(t, s, "GARBAGE\r\n\r\n"); raw != "" {
		t.Errorf("expected no response, got %q", raw)
	}
	if !s.Running() {
		t.Error("server stopped after a malformed request")
	}
}

func TestInvalidHeaderEncoding(t *testing.T) {
	s := startTestServer(t, nil)

	resp := parseResponse(t, roundTrip(t, s, "GET /\xff HTTP/1.1\r\n\r\n"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPing(t *testing.T) {
	s := startTestServer(t, nil)

	resp := parseResponse(t, roundTrip(t, s, "GET  HTTP/1.1\r\n\r\n"))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "" {
		t.Errorf("body = %q, want empty", body)
	}
}

func TestProbe(t *testing.T) {
	s := startTestServer(t, nil)

	if err := s.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	result := make(chan bool, 1)
	s.Test(func(ok bool) { result <- ok })
	select {
	case ok := <-result:
		if !ok {
			t.Error("Test() reported failure against a running server")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Test() callback never ran")
	}

	s.Stop()
	if err := s.Probe(context.Background()); udiderrors.CodeOf(err) != udiderrors.ProbeFailed {
		t.Errorf("Probe() after Stop error = %v, want PROBE_FAILED", err)
	}
}

func TestURL(t *testing.T) {
	cfg := config.DefaultConfig().Server
	s := New(cfg, nil, nil, nil)

	if got := s.URL(); got != "http://127.0.0.1:2511" {
		t.Errorf("URL() = %q", got)
	}
	if got := s.EndpointURL(EndpointInstallProfile); got != "http://127.0.0.1:2511/install-profile" {
		t.Errorf("EndpointURL() = %q", got)
	}
	if got := s.EndpointURL(EndpointPing); got != "http://127.0.0.1:2511" {
		t.Errorf("ping URL = %q", got)
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	s := startTestServer(t, nil)
	req := "POST /udid HTTP/1.1\r\nContent-Length: " + strconv.Itoa(len(udidBody)) + "\r\n\r\n" + udidBody

	const n = 8
	done := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			conn, err := net.Dial("tcp", s.Addr().String())
			if err != nil {
				done <- ""
				return
			}
			defer conn.Close()
			_, _ = io.WriteString(conn, req)
			b, _ := io.ReadAll(conn)
			done <- string(b)
		}()
	}
	for i := 0; i < n; i++ {
		if raw := <-done; !strings.HasPrefix(raw, "HTTP/1.1 301 ") {
			t.Errorf("response %d = %q", i, raw)
		}
	}

	summaries := 0
	for _, e := range s.Activity().Entries() {
		if strings.HasPrefix(e, "\n========== INFO DEVICE ==========\n") {
			summaries++
		}
	}
	if summaries != n {
		t.Errorf("found %d summaries, want %d", summaries, n)
	}
}

func TestListenerFaultThenRecovery(t *testing.T) {
	s := startTestServer(t, nil)
	states, cancel := s.Subscribe()
	defer cancel()

	s.mu.Lock()
	ln, done := s.ln, s.loopDone
	s.mu.Unlock()

	// Closing the socket without Stop makes Accept fail on a live listener.
	if err := ln.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop did not exit")
	}

	if s.Status() != StatusError {
		t.Fatalf("Status() = %v, want Error", s.Status())
	}
	if s.Running() || s.Addr() != nil {
		t.Error("listener should be torn down after a fault")
	}
	select {
	case st := <-states:
		if st.Status != StatusError || st.Running {
			t.Errorf("published state = %+v, want Error", st)
		}
	case <-time.After(time.Second):
		t.Fatal("no state published on fault")
	}

	entries := s.Activity().Entries()
	if len(entries) != 2 || !strings.HasPrefix(entries[1], "Server error: ") {
		t.Fatalf("entries = %q, want start then Server error", entries)
	}
	if hasEntry(s.Activity(), "Server stopped") {
		t.Error("a fault must not be logged as a stop")
	}

	s.Stop()
	if s.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %v, want Stopped", s.Status())
	}
	if n := s.Activity().Len(); n != 2 {
		t.Errorf("Stop after a fault logged something: %q", s.Activity().Entries())
	}

	if err := s.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if s.Status() != StatusStarted {
		t.Errorf("Status() after restart = %v, want Started", s.Status())
	}
	resp := parseResponse(t, roundTrip(t, s, "GET  HTTP/1.1\r\n\r\n"))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ping after restart status = %d, want 200", resp.StatusCode)
	}
}
