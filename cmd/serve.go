package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	httpserver "github.com/OliveiraNt/kmt/internal/adapters/http"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr string
		open bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the live event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, addr, open)
		},
	}

	defaultAddr := ":8080"
	if port := os.Getenv("KMT_HTTP_PORT"); port != "" {
		defaultAddr = ":" + port
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "Listen address")
	cmd.Flags().BoolVar(&open, "open", false, "Open the API in the default browser")
	return cmd
}

func runServe(parent context.Context, opts *rootOptions, addr string, open bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := opts.bootstrap()
	defer a.close()

	if err := a.repo.Watch(); err != nil {
		utils.Logger.Error("failed to start config watcher", "err", err)
		return err
	}

	if open {
		go func() {
			url := browseURL(addr)
			if err := browser.OpenURL(url); err != nil {
				utils.Logger.Warn("open browser failed", "url", url, "err", err)
			}
		}()
	}

	utils.Logger.Info("HTTP API starting", "addr", addr, "config", a.repo.Path())
	return httpserver.New(a.coord).Run(ctx, addr)
}

// browseURL turns a listen address into something a browser can open.
func browseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/api/brokers"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/api/brokers"
}
