package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"

	udiderrors "getudid/internal/errors"
	"getudid/internal/identity"
)

// handleConn serves exactly one request on conn and closes it.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	logger := s.logger.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())

	buf, err := readRequest(conn, s.config.MaxRequestBytes)
	if err != nil {
		logger.Debug("Read failed", "error", err)
		return
	}

	req, err := ParseRequest(buf)
	if err != nil {
		if err == errHeaderEncoding {
			logger.Debug("Rejecting request", "error", err)
			s.write(conn, logger, errorResponse())
			return
		}
		logger.Debug("Dropping connection", "error", err)
		return
	}

	endpoint := ResolveEndpoint(req.Path)
	logger.Debug("Request", "method", req.Method, "path", req.Path, "endpoint", endpoint.String(), "body_bytes", len(req.Body))

	if endpoint == EndpointInstallProfile {
		resp, name, ok := s.serveProfile(logger)
		if s.write(conn, logger, resp) && ok {
			s.activity.Append("The " + name + " file has been sent to the user's browser. Please download and install it.")
		}
		return
	}
	s.write(conn, logger, s.route(endpoint, req, logger))
}

func (s *Server) route(endpoint Endpoint, req *Request, logger *slog.Logger) response {
	switch endpoint {
	case EndpointPing:
		return pingResponse()
	case EndpointUDID:
		return s.serveUDID(req, logger)
	case EndpointSuccess:
		return s.serveSuccess()
	default:
		return errorResponse()
	}
}

func (s *Server) serveUDID(req *Request, logger *slog.Logger) response {
	if req.Method != http.MethodPost {
		logger.Warn("Rejected identity submission", "error",
			udiderrors.New(udiderrors.MethodNotAllowed, "udid requires POST", nil).WithDetails(map[string]string{"method": req.Method}))
		s.activity.Append("Can't parse data.")
		return errorResponse()
	}

	rec, err := identity.Extract(req.Body, s.now())
	if err != nil {
		logger.Warn("Identity extraction failed", "error", err)
		if cause := errors.Unwrap(err); cause != nil && udiderrors.CodeOf(err) == udiderrors.ParseError {
			s.activity.Append("Parse error: " + cause.Error())
		} else {
			s.activity.Append("Can't parse data.")
		}
		return errorResponse()
	}

	s.storeRecord(rec)
	return redirectResponse(EndpointSuccess.Path())
}

// serveProfile returns the artifact transfer, or the error page when the
// artifact cannot be read. ok reports whether the artifact was loaded.
func (s *Server) serveProfile(logger *slog.Logger) (resp response, name string, ok bool) {
	if s.artifacts == nil {
		s.activity.Append("Could not read profile")
		return errorResponse(), "", false
	}

	name = s.artifacts.Name()
	data, err := s.artifacts.Artifact()
	if err != nil {
		logger.Warn("Profile unavailable", "error", err)
		s.activity.Append("Could not read " + name)
		return errorResponse(), name, false
	}
	return fileResponse(name, data), name, true
}

func (s *Server) serveSuccess() response {
	rec, ok := s.Record()
	if !ok {
		return pageResponse(http.StatusOK, nil)
	}
	return pageResponse(http.StatusOK, &rec)
}

func (s *Server) write(conn net.Conn, logger *slog.Logger, resp response) bool {
	if _, err := conn.Write(resp.Bytes()); err != nil {
		logger.Debug("Write failed", "status", resp.status, "error", err)
		return false
	}
	logger.Debug("Response sent", "status", resp.status, "body_bytes", len(resp.body))
	return true
}
