package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoHost answers every callScript envelope with the script name as
// the result, in reverse order of arrival once two are queued.
func echoHost(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %s", err)
			return
		}
		defer c.Close()

		var queued []OutboundMessage
		for {
			var msg OutboundMessage
			if err := c.ReadJSON(&msg); err != nil {
				return
			}
			queued = append(queued, msg)
			if len(queued) < 2 {
				continue
			}
			for i := len(queued) - 1; i >= 0; i-- {
				result, _ := json.Marshal(queued[i].ScriptName)
				reply := InboundMessage{
					Source:     SourceFileMaker,
					CallbackID: queued[i].CallbackID,
					Result:     result,
				}
				if err := c.WriteJSON(reply); err != nil {
					return
				}
			}
			queued = nil
		}
	}))
}

func TestHostConnRoundTrip(t *testing.T) {
	ts := echoHost(t)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, err := DialHost(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, url, conn.URL())

	b := New(WithTransports(conn.Transport()), WithTimeout(2*time.Second))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- conn.Serve(ctx, b.DeliverJSON)
	}()

	type outcome struct {
		script string
		result json.RawMessage
		err    error
	}
	outcomes := make(chan outcome, 2)
	for _, script := range []string{"One", "Two"} {
		go func(script string) {
			result, err := b.CallScript(ctx, script, "")
			outcomes <- outcome{script, result, err}
		}(script)
	}

	for i := 0; i < 2; i++ {
		o := <-outcomes
		require.NoError(t, o.err)
		var got string
		require.NoError(t, json.Unmarshal(o.result, &got))
		assert.Equal(t, o.script, got)
	}

	require.NoError(t, conn.Close())
	assert.False(t, conn.Transport().Available())
	assert.ErrorIs(t, conn.PostMessage(OutboundMessage{}), ErrTransportUnavailable)

	select {
	case err := <-serveErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
