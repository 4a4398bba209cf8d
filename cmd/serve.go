package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/fmbridge/fmbridge/config"
	"github.com/fmbridge/fmbridge/devhost"
	"github.com/fmbridge/fmbridge/upload"
)

var (
	serveAddr   string
	widgetDir   string
	scriptsFile string
	uploadDir   string
	hideQRCode  bool
	serveLAN    bool
)

func serveCommand() *cobra.Command {
	cmd := cobra.Command{
		Use:   "serve",
		Short: "Serve the widget against an emulated FileMaker host",
		Long: `Serve the widget directory with a FileMakerHandler shim that forwards
script calls to this process. Scripts come from the built-in set and,
with --scripts, from a JavaScript file of registerScript(name, fn) calls.`,
		Args: cobra.NoArgs,
		Run:  serveAction,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from devHost.addr)")
	cmd.Flags().StringVar(&widgetDir, "dir", "", "widget directory to serve (default from devHost.widgetDir)")
	cmd.Flags().StringVar(&scriptsFile, "scripts", "", "JavaScript file of emulated FileMaker scripts")
	cmd.Flags().StringVar(&uploadDir, "upload-dir", "", "write completed uploads to this directory")
	cmd.Flags().BoolVar(&hideQRCode, "hide-qr", false, "suppress the QR code for other devices")
	cmd.Flags().BoolVar(&serveLAN, "lan", false, "listen on every interface instead of localhost")

	return &cmd
}

func serveAction(cmd *cobra.Command, args []string) {
	dc := config.Merge(cfg, &config.Config{
		DevHost: config.DevHostConfig{
			Addr:        serveAddr,
			WidgetDir:   widgetDir,
			ScriptsFile: scriptsFile,
		},
	}).DevHost

	addr := dc.Addr
	if serveLAN {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			bail("Bad listen address %s: %s", addr, err)
		}
		addr = net.JoinHostPort("", port)
	}

	srv, err := devhost.New(devhost.Options{
		WidgetDir:    dc.WidgetDir,
		ScriptsFile:  dc.ScriptsFile,
		UploadDir:    uploadDir,
		ScriptNames:  cfg.ScriptNames(),
		UploadScript: cfg.Script(config.ScriptUpload, upload.DefaultScript),
		Logger:       log,
	})
	if err != nil {
		bail("Failed to start devhost: %s", err)
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		bail("Failed to listen on %s: %s", addr, err)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	printServeInstructions(ln.Addr().(*net.TCPAddr).IP, port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := srv.Serve(ctx, ln); err != nil {
		bail("Serve error: %s", err)
	}
}

func printServeInstructions(ip net.IP, port int) {
	host := "localhost"
	if !ip.IsUnspecified() && !ip.IsLoopback() {
		host = ip.String()
	}
	fmt.Printf("Widget: http://%s\n", net.JoinHostPort(host, strconv.Itoa(port)))
	fmt.Printf("Scripts: ws://%s%s\n", net.JoinHostPort(host, strconv.Itoa(port)), devhost.WSPath)

	if hideQRCode || !ip.IsUnspecified() {
		return
	}

	// other devices on the network can open the widget by scanning
	for _, addr := range nonLocalhostAddresses() {
		url := fmt.Sprintf("http://%s", net.JoinHostPort(addr, strconv.Itoa(port)))
		fmt.Printf("\n%s\n", url)
		qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
	}
}

var nonLocalhostAddresses = func() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}

	var outAddrs []string

	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				outAddrs = append(outAddrs, ipnet.IP.String())
			}
		}
	}

	return outAddrs
}
