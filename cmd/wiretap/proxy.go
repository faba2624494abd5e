package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/codewiresh/wirestream/internal/capture"
	"github.com/codewiresh/wirestream/internal/tap"
)

func proxyCmd() *cobra.Command {
	var (
		listen      string
		upstream    string
		capturePath string
		opsAddr     string
		note        string
		maxFrame    uint32
	)

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Relay frames between clients and an upstream, observing traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(dataDir())
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.Proxy.Listen
			}
			if upstream == "" {
				upstream = cfg.Proxy.Upstream
			}
			if capturePath == "" {
				capturePath = cfg.Proxy.Capture
			}
			if opsAddr == "" {
				opsAddr = cfg.Proxy.OpsAddr
			}
			if upstream == "" {
				return fmt.Errorf("an upstream is required (--upstream, config, or WIRETAP_UPSTREAM)")
			}

			var st *capture.Store
			if capturePath != "" {
				if err := os.MkdirAll(filepath.Dir(capturePath), 0o755); err != nil {
					return fmt.Errorf("creating capture dir: %w", err)
				}
				st, err = capture.Open(capturePath)
				if err != nil {
					return fmt.Errorf("opening capture store: %w", err)
				}
				defer st.Close()
			}

			p, err := tap.Listen(tap.Config{
				ListenAddr: listen,
				Upstream:   upstream,
				MaxFrame:   maxFrame,
				Note:       note,
				Store:      st,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, "[wiretap] shutting down...")
				cancel()
			}()

			if opsAddr != "" {
				reg := prometheus.NewRegistry()
				tap.Register(reg)
				opsSrv := &http.Server{Addr: opsAddr, Handler: tap.NewOpsHandler(st, reg)}
				go func() {
					slog.Info("ops listening", "addr", opsAddr)
					if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						slog.Error("ops server failed", "err", err)
					}
				}()
				go func() {
					<-ctx.Done()
					opsSrv.Close()
				}()
			}

			fmt.Fprintf(os.Stderr, "[wiretap] proxying %s -> %s\n", p.Addr(), upstream)
			if st != nil {
				fmt.Fprintf(os.Stderr, "[wiretap] capturing to %s (session %s)\n", capturePath, p.SessionID())
			}
			return p.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "TCP listen address (default from config)")
	cmd.Flags().StringVar(&upstream, "upstream", "", "Upstream host:port or ws:// URL")
	cmd.Flags().StringVar(&capturePath, "capture", "", "Capture frames to this SQLite database")
	cmd.Flags().StringVar(&opsAddr, "ops-addr", "", "Serve /healthz, /metrics, and /sessions on this address")
	cmd.Flags().StringVar(&note, "note", "", "Note stored on the capture session")
	cmd.Flags().Uint32Var(&maxFrame, "max-frame", 0, "Frame size limit in bytes (0 = default)")
	return cmd
}
