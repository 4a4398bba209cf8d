package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmbridge/fmbridge/bridge"
	"github.com/fmbridge/fmbridge/devhost"
	"github.com/fmbridge/fmbridge/internal"
)

var hostFlag string

func callCommand() *cobra.Command {
	cmd := cobra.Command{
		Use:   "call SCRIPT [PARAM]",
		Short: "Run a FileMaker script on a development host",
		Long: `Run a FileMaker script on a running development host and print its
result. Use '-' as PARAM to read the parameter from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		Run:  callAction,
	}

	cmd.Flags().StringVar(&hostFlag, "host", "", "development host address (default from devHost.addr)")
	cmd.ValidArgsFunction = scriptNameCompletion

	return &cmd
}

func callAction(cmd *cobra.Command, args []string) {
	var param string
	if len(args) > 1 {
		param = args[1]
	}
	if param == "-" {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			bail("Read stdin err: %s", err)
		}
		param = strings.TrimSpace(string(data))
	}

	ctx := context.Background()
	b, closeHost, err := connectHost(ctx)
	if err != nil {
		bail("%s", err)
	}
	defer closeHost()

	result, err := b.CallScript(ctx, args[0], param)
	if err != nil {
		var hostErr *bridge.HostError
		if errors.As(err, &hostErr) {
			bail("%s", hostErr)
		}
		bail("Call error: %s", err)
	}

	fmt.Println(formatResult(result))
}

// connectHost dials the development host and returns a bridge that talks
// to it. Host error replies fail the call.
func connectHost(ctx context.Context) (*bridge.Bridge, func(), error) {
	addr := hostFlag
	if addr == "" {
		addr = cfg.DevHost.Addr
	}
	hostURL, err := internal.ParseHostURL(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("bad host address %s: %w", addr, err)
	}
	wsURL := hostURL.WebSocket(devhost.WSPath).String()

	conn, err := bridge.DialHost(ctx, wsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("is `fmbridge serve` running? %w", err)
	}

	b := bridge.New(
		bridge.WithTransports(conn.Transport()),
		bridge.WithTimeout(cfg.Timeout()),
		bridge.WithScriptNames(cfg.ScriptNames()),
		bridge.WithFailOnHostError(true),
		bridge.WithLogForwarding(cfg.FileMaker.EnableLogging),
		bridge.WithLogger(log.With("component", "bridge")),
	)

	serveCtx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := conn.Serve(serveCtx, b.DeliverJSON); err != nil && serveCtx.Err() == nil {
			log.Debug("host connection closed", "url", wsURL, "error", err)
		}
	}()

	return b, func() {
		cancel()
		conn.Close()
	}, nil
}

// formatResult indents JSON results; anything else is printed as is.
func formatResult(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
