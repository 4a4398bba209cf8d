package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostURL_protocols(t *testing.T) {
	testCases := []struct {
		name         string
		inputURL     string
		expectedAddr string
		expectedURL  HostURL
	}{
		{
			name:         "HTTP with host and port",
			inputURL:     "http://127.0.0.1:8080",
			expectedAddr: "127.0.0.1:8080",
			expectedURL: HostURL{
				Proto: "http",
				Host:  "127.0.0.1",
				Port:  8080,
			},
		},
		{
			name:         "WS with path",
			inputURL:     "ws://localhost:8080/ws",
			expectedAddr: "localhost:8080",
			expectedURL: HostURL{
				Proto: "ws",
				Host:  "localhost",
				Port:  8080,
				Path:  "/ws",
			},
		},
		{
			name:         "WSS with host and port",
			inputURL:     "wss://1.1.1.1:2222",
			expectedAddr: "1.1.1.1:2222",
			expectedURL: HostURL{
				Proto: "wss",
				Host:  "1.1.1.1",
				Port:  2222,
			},
		},
		{
			name:         "WS with trailing slash",
			inputURL:     "ws://1.1.1.1:2222/",
			expectedAddr: "1.1.1.1:2222",
			expectedURL: HostURL{
				Proto: "ws",
				Host:  "1.1.1.1",
				Port:  2222,
				Path:  "/",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := ParseHostURL(tc.inputURL)
			require.NoError(t, err)

			require.Equal(t, tc.inputURL, actual.String())
			require.Equal(t, tc.expectedAddr, actual.Addr())
			require.Equal(t, tc.expectedURL, actual)
		})
	}
}

func TestParseHostURL_default_proto_http(t *testing.T) {
	actual := MustParseHostURL("localhost:8080")
	require.Equal(t, "http://localhost:8080", actual.String())
	require.Equal(t, "ws://localhost:8080/ws", actual.WebSocket("/ws").String())
}

func TestParseHostURL_listen_all_interfaces(t *testing.T) {
	actual, err := ParseHostURL(":8080")
	require.NoError(t, err)
	require.Equal(t, "", actual.Host)
	require.Equal(t, ":8080", actual.Addr())
	require.Equal(t, "ws://localhost:8080/ws", actual.WebSocket("/ws").String())
}

func TestHostURL_secure_websocket(t *testing.T) {
	actual := MustParseHostURL("https://dev.example.com:8443")
	require.Equal(t, "wss://dev.example.com:8443/ws", actual.WebSocket("/ws").String())
}

func TestParseHostURL_error(t *testing.T) {
	testCases := []struct {
		name        string
		inputURL    string
		expectedErr error
	}{
		{
			name:        "WS without `//`",
			inputURL:    "ws:/1.1.1.1:2222",
			expectedErr: MalformedProtoErr,
		},
		{
			name:        "TCP protocol",
			inputURL:    "tcp://1.1.1.1:2222",
			expectedErr: MalformedProtoErr,
		},
		{
			name:        "missing protocol with `//`",
			inputURL:    "//1.1.1.1:2222",
			expectedErr: MalformedProtoErr,
		},
		{
			name:        "missing port",
			inputURL:    "http://1.1.1.1",
			expectedErr: InvalidPortErr,
		},
		{
			name:        "non-numeric port",
			inputURL:    "localhost:http",
			expectedErr: InvalidPortErr,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := ParseHostURL(tc.inputURL)
			if assert.Error(t, err) {
				require.Equal(t, tc.expectedErr, err)
			}
			require.Zero(t, actual)
		})
	}
}

func TestNormalizeServer(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"localhost", "localhost"},
		{"http://fms.example.com", "fms.example.com"},
		{"https://fms.example.com/", "fms.example.com"},
		{"  10.0.0.5 ", "10.0.0.5"},
	}
	for _, tc := range testCases {
		actual, err := NormalizeServer(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.expected, actual)
	}

	for _, input := range []string{"", "https://", "fmp://host", "host/path"} {
		_, err := NormalizeServer(input)
		assert.ErrorIs(t, err, MalformedServerErr, input)
	}
}
