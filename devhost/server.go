// Package devhost emulates a FileMaker host for widget development. It
// serves the widget over HTTP, gives the page a FileMakerHandler that
// talks to the host over a websocket, and answers script calls from
// built-in or JavaScript scripts.
package devhost

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"

	"github.com/fmbridge/fmbridge/bridge"
	"github.com/fmbridge/fmbridge/upload"
	"github.com/fmbridge/fmbridge/version"
)

const (
	// ShimPath is where the page loads the emulated message handler from.
	ShimPath = "/fmbridge-devhost.js"
	// WSPath is the websocket endpoint widgets and the CLI connect to.
	WSPath = "/ws"
)

//go:embed shim.js
var shimJS []byte

var shimTag = []byte(`<script src="` + ShimPath + `"></script>`)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// WebViewers load widgets from file:// and data: origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options configures a Server. The zero value serves no widget and
// answers with the built-in scripts under their default names.
type Options struct {
	// WidgetDir is served at /. Empty disables static files.
	WidgetDir string
	// ScriptsFile is an optional JavaScript file of registerScript calls.
	ScriptsFile string
	// UploadDir receives completed uploads. Empty keeps them in memory.
	UploadDir    string
	ScriptNames  bridge.ScriptNames
	UploadScript string
	Logger       *slog.Logger
}

// Server is the development host.
type Server struct {
	opts     Options
	logger   *slog.Logger
	registry *Registry
	builtins *builtins
	js       *JSScripts

	// FileMaker runs one script at a time.
	queueMu sync.Mutex

	sessionsMu sync.Mutex
	sessions   map[string]*websocket.Conn
}

// New builds a Server, evaluating opts.ScriptsFile if set.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "devhost")

	names := bridge.DefaultScriptNames().Merge(opts.ScriptNames)
	uploadScript := opts.UploadScript
	if uploadScript == "" {
		uploadScript = upload.DefaultScript
	}

	s := &Server{
		opts:     opts,
		logger:   logger,
		registry: NewRegistry(),
		builtins: newBuiltins(logger, opts.UploadDir, version.AgentVersion),
		sessions: make(map[string]*websocket.Conn),
	}
	s.builtins.register(s.registry, names, uploadScript)

	if opts.ScriptsFile != "" {
		js, err := LoadJSScripts(opts.ScriptsFile, logger)
		if err != nil {
			return nil, err
		}
		s.js = js
		for _, name := range js.Names() {
			s.registry.Register(name, js.Script(name))
		}
		logger.Info("loaded javascript scripts", "file", opts.ScriptsFile, "scripts", js.Names())
	}

	return s, nil
}

// Registry returns the scripts the server answers with. Registering on
// it overrides built-ins.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Messages returns every notification widgets asked the host to show.
func (s *Server) Messages() []Message {
	return s.builtins.messageLog()
}

// UploadedFile returns a completed upload by file name.
func (s *Server) UploadedFile(name string) ([]byte, bool) {
	return s.builtins.file(name)
}

// Sessions returns the number of connected widgets.
func (s *Server) Sessions() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// Call runs a script the way a widget call would.
func (s *Server) Call(ctx context.Context, scriptName, parameter string) (any, error) {
	script, ok := s.registry.Lookup(scriptName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScript, scriptName)
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return script(ctx, parameter)
}

// Handler returns the HTTP handler serving the widget, the shim and the
// websocket endpoint.
func (s *Server) Handler() http.Handler {
	smux := http.NewServeMux()
	smux.HandleFunc(WSPath, s.handleWS)
	smux.HandleFunc(ShimPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(shimJS)
	})
	if s.opts.WidgetDir != "" {
		smux.Handle("/", gzhttp.GzipHandler(s.widgetHandler(http.Dir(s.opts.WidgetDir))))
	}
	return smux
}

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down and disconnects
// every widget.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.closeSessions()
	}()

	s.logger.Info("devhost listening", "addr", ln.Addr().String())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases the JavaScript runtime.
func (s *Server) Close() {
	s.closeSessions()
	if s.js != nil {
		s.js.Close()
	}
}

func (s *Server) closeSessions() {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	for id, c := range s.sessions {
		c.Close()
		delete(s.sessions, id)
	}
}

func (s *Server) widgetHandler(fsys http.FileSystem) http.Handler {
	fileServer := http.FileServer(fsys)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if strings.HasSuffix(name, "/") {
			name += "index.html"
		}
		if path.Ext(name) != ".html" {
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fsys.Open(name)
		if err != nil {
			fileServer.ServeHTTP(w, r)
			return
		}
		defer f.Close()
		page, err := io.ReadAll(f)
		if err != nil {
			fileServer.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(InjectShim(page))
	})
}

// InjectShim adds the shim script tag to an HTML page, as the first
// element of <head> so it runs before widget code.
func InjectShim(page []byte) []byte {
	if bytes.Contains(page, shimTag) {
		return page
	}

	lower := bytes.ToLower(page)
	at := 0
	for off := 0; off < len(lower); {
		i := bytes.Index(lower[off:], []byte("<head"))
		if i < 0 {
			break
		}
		i += off + len("<head")
		// skip <header>
		if i < len(lower) && (lower[i] == '>' || lower[i] == ' ' || lower[i] == '\t' || lower[i] == '\n') {
			if end := bytes.IndexByte(lower[i:], '>'); end >= 0 {
				at = i + end + 1
			}
			break
		}
		off = i
	}

	out := make([]byte, 0, len(page)+len(shimTag))
	out = append(out, page[:at]...)
	out = append(out, shimTag...)
	out = append(out, page[at:]...)
	return out
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer c.Close()

	sessionID := uuid.NewString()
	logger := s.logger.With("session", sessionID)

	s.sessionsMu.Lock()
	s.sessions[sessionID] = c
	s.sessionsMu.Unlock()
	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, sessionID)
		s.sessionsMu.Unlock()
	}()

	logger.Info("widget connected", "remote", r.RemoteAddr)
	defer logger.Info("widget disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var sendMu sync.Mutex
	sendMsg := func(msg bridge.InboundMessage) {
		sendMu.Lock()
		defer sendMu.Unlock()
		if err := c.WriteJSON(msg); err != nil {
			logger.Debug("reply failed", "callback_id", msg.CallbackID, "error", err)
		}
	}

	// scripts still running when the widget goes away are cancelled
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if _, isCloseErr := err.(*websocket.CloseError); err == io.EOF || isCloseErr {
			break
		} else if err != nil {
			logger.Debug("websocket read failed", "error", err)
			break
		}

		var msg bridge.OutboundMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			logger.Warn("ignoring undecodable envelope", "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			sendMsg(s.reply(ctx, logger, msg))
		}()
	}
}

func (s *Server) reply(ctx context.Context, logger *slog.Logger, msg bridge.OutboundMessage) bridge.InboundMessage {
	resp := bridge.InboundMessage{
		Source:     bridge.SourceFileMaker,
		CallbackID: msg.CallbackID,
	}

	fail := func(err error) bridge.InboundMessage {
		logger.Warn("script failed", "script", msg.ScriptName, "error", err)
		resp.Error, _ = json.Marshal(err.Error())
		return resp
	}

	if msg.Action != bridge.ActionCallScript {
		return fail(fmt.Errorf("unsupported action %q", msg.Action))
	}

	start := time.Now()
	result, err := s.Call(ctx, msg.ScriptName, msg.Parameter)
	if err != nil {
		return fail(err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fail(fmt.Errorf("encode result: %w", err))
	}
	resp.Result = raw

	logger.Debug("script call",
		"script", msg.ScriptName,
		"callback_id", msg.CallbackID,
		"elapsed", time.Since(start),
	)
	return resp
}
