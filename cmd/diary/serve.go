package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/diary"
	"github.com/aretw0/diary/pkg/web"
)

var (
	serveAddr         string
	serveTemplatesDir string
	serveSecureCookie bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the diary web interface",
	Long: `Serve starts the HTML interface. Every browser gets its own session;
with --templates-dir the pages are read from disk and reloaded on change.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := cfg.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		backend, err := diary.Open(ctx, diary.WithConfig(cfg), diary.WithLogger(slog.Default()))
		if err != nil {
			fatal("Failed to open backend", err)
		}
		if closer, ok := backend.(io.Closer); ok {
			defer closer.Close()
		}

		server, err := web.New(web.Config{
			Backend:      backend,
			SessionKey:   []byte(cfg.SessionKey),
			TemplatesDir: serveTemplatesDir,
			SecureCookie: serveSecureCookie,
			Logger:       slog.Default(),
		})
		if err != nil {
			fatal("Failed to create server", err)
		}
		defer server.Close()

		if err := server.Run(ctx, addr); err != nil {
			fatal("Server stopped", err)
		}
		slog.Info("server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "Listen address (default from DIARY_ADDR or config)")
	serveCmd.Flags().StringVar(&serveTemplatesDir, "templates-dir", "", "Read templates from this directory and reload them on change")
	serveCmd.Flags().BoolVar(&serveSecureCookie, "secure-cookie", false, "Send the browser cookie over HTTPS only")
}
