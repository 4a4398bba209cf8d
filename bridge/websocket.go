package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// writeTimeout bounds a single envelope write so a stalled host shows
// up as a dispatch error instead of a hung call.
var writeTimeout = 10 * time.Second

// HostConn is a websocket connection to a development host. It acts as
// a modern MessageHandler for outbound envelopes and feeds inbound
// frames back to a Bridge through Serve.
type HostConn struct {
	url    string
	ctx    context.Context
	cancel context.CancelFunc

	wsClient *websocket.Conn
	sendMu   sync.Mutex

	closed int32
	errMu  sync.Mutex
	err    error
}

// DialHost connects to the development host websocket at url.
func DialHost(ctx context.Context, url string) (*HostConn, error) {
	wsClient, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	// envelopes carry base64 upload chunks
	wsClient.SetReadLimit(16 << 20)

	connCtx, cancel := context.WithCancel(context.Background())
	return &HostConn{
		url:      url,
		ctx:      connCtx,
		cancel:   cancel,
		wsClient: wsClient,
	}, nil
}

// URL returns the websocket url c was dialed with.
func (c *HostConn) URL() string {
	return c.url
}

// Transport returns a ModernTransport that posts through c while the
// connection is open and reports itself unavailable afterwards.
func (c *HostConn) Transport() Transport {
	return &ModernTransport{Lookup: c.handler}
}

func (c *HostConn) handler() MessageHandler {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil
	}
	return c
}

// PostMessage writes msg as a JSON text frame.
func (c *HostConn) PostMessage(msg OutboundMessage) error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrTransportUnavailable
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return wsjson.Write(ctx, c.wsClient, msg)
}

// Serve reads frames until the connection fails or ctx ends, passing
// each one to deliver. It returns the error that stopped it.
func (c *HostConn) Serve(ctx context.Context, deliver func(raw []byte)) error {
	go func() {
		select {
		case <-ctx.Done():
			c.closeWithError(ctx.Err())
		case <-c.ctx.Done():
		}
	}()

	for {
		_, msg, err := c.wsClient.Read(c.ctx)
		if err != nil {
			if atomic.LoadInt32(&c.closed) != 0 {
				return c.closeErr()
			}
			wrappedErr := fmt.Errorf("WS Read: %w", err)
			c.closeWithError(wrappedErr)
			return wrappedErr
		}
		deliver(msg)
	}
}

// Close tears down the connection.
func (c *HostConn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.setErr(errors.New("connection closed"))
	c.cancel()
	return c.wsClient.Close(websocket.StatusNormalClosure, "")
}

func (c *HostConn) closeWithError(err error) {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	c.setErr(err)
	c.cancel()
	c.wsClient.Close(websocket.StatusGoingAway, "")
}

func (c *HostConn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.err = err
}

func (c *HostConn) closeErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}
