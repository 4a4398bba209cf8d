package internal

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// HostURL holds protocol, host, port, and path information for a
// development host endpoint.
type HostURL struct {
	Proto string
	Host  string
	Port  int
	Path  string
}

var (
	// MalformedProtoErr is used for protocols other than http, https, ws
	// and wss, or when the "//" after the protocol is missing.
	MalformedProtoErr = errors.New("invalid URL for specified protocol (missing or unsupported \"//\")")
	// InvalidPortErr is used when we were unable to convert the specified port to an integer.
	InvalidPortErr = errors.New("missing port")
	// MalformedServerErr is used when a FileMaker server carries a path
	// or a protocol other than http(s).
	MalformedServerErr = errors.New("FileMaker server must be a host name, optionally prefixed with http:// or https://")
)

// ParseHostURL parses an address of the format [<proto>://]<host>:<port>[/path],
// where <proto> defaults to "http". A bare ":<port>" listens on every
// interface and is reported with an empty host.
func ParseHostURL(addr string) (HostURL, error) {
	proto := "http"
	rest := addr
	if i := strings.Index(addr, "://"); i >= 0 {
		proto = addr[:i]
		rest = addr[i+3:]
		switch proto {
		case "http", "https", "ws", "wss":
		default:
			return HostURL{}, MalformedProtoErr
		}
	} else if strings.HasPrefix(addr, "//") || strings.Contains(addr, ":/") {
		return HostURL{}, MalformedProtoErr
	}

	path := ""
	if i := strings.Index(rest, "/"); i >= 0 {
		path = rest[i:]
		rest = rest[:i]
	}

	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return HostURL{}, InvalidPortErr
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return HostURL{}, InvalidPortErr
	}

	return HostURL{
		Proto: proto,
		Host:  host,
		Port:  port,
		Path:  path,
	}, nil
}

// MustParseHostURL panics if ParseHostURL returns an error.
func MustParseHostURL(input string) HostURL {
	url, err := ParseHostURL(input)
	if err != nil {
		panic(err)
	}
	return url
}

// String joins the url parts back into <proto>://<host>:<port><path>.
func (url HostURL) String() string {
	return fmt.Sprintf("%s://%s%s", url.Proto, url.Addr(), url.Path)
}

func (url HostURL) Addr() string {
	return net.JoinHostPort(url.Host, strconv.Itoa(url.Port))
}

// WebSocket returns the websocket endpoint at path on the same host.
// An empty host becomes localhost.
func (url HostURL) WebSocket(path string) HostURL {
	ws := url
	ws.Path = path
	switch url.Proto {
	case "https", "wss":
		ws.Proto = "wss"
	default:
		ws.Proto = "ws"
	}
	if ws.Host == "" {
		ws.Host = "localhost"
	}
	return ws
}

// NormalizeServer strips an http:// or https:// prefix and any trailing
// slash from a FileMaker server address, leaving the host that fmp://
// URLs expect.
func NormalizeServer(server string) (string, error) {
	s := strings.TrimSpace(server)
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimSuffix(s, "/")
	if s == "" || strings.Contains(s, "/") || strings.Contains(s, "://") {
		return "", MalformedServerErr
	}
	return s, nil
}
