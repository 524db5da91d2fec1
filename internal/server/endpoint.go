package server

import "strings"

// Endpoint is one of the fixed routes the listener understands.
type Endpoint int

const (
	// EndpointError is the fallback for every path outside the table.
	EndpointError Endpoint = iota
	// EndpointPing is the empty path, used for liveness probing.
	EndpointPing
	// EndpointUDID receives the device's identity payload.
	EndpointUDID
	// EndpointInstallProfile serves the configuration profile.
	EndpointInstallProfile
	// EndpointSuccess shows the last extracted identity.
	EndpointSuccess
)

var endpointPaths = map[string]Endpoint{
	"":                 EndpointPing,
	"/udid":            EndpointUDID,
	"/install-profile": EndpointInstallProfile,
	"/success":         EndpointSuccess,
}

// Path returns the request path the endpoint is served on.
func (e Endpoint) Path() string {
	switch e {
	case EndpointPing:
		return ""
	case EndpointUDID:
		return "/udid"
	case EndpointInstallProfile:
		return "/install-profile"
	case EndpointSuccess:
		return "/success"
	default:
		return "/error"
	}
}

func (e Endpoint) String() string {
	switch e {
	case EndpointPing:
		return "ping"
	case EndpointUDID:
		return "udid"
	case EndpointInstallProfile:
		return "install-profile"
	case EndpointSuccess:
		return "success"
	default:
		return "error"
	}
}

// ResolveEndpoint maps a raw request path onto an Endpoint. The query string
// is dropped, then a single trailing slash unless the path is just "/".
// Every input resolves; anything outside the table is EndpointError.
func ResolveEndpoint(path string) Endpoint {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	if e, ok := endpointPaths[path]; ok {
		return e
	}
	return EndpointError
}
