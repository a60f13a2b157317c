package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conneroisu/jitserve/internal/config"
	"github.com/conneroisu/jitserve/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve [root]",
	Aliases: []string{"s", "dev"},
	Short:   "Start the development server",
	Long: `Start the development server. Source modules under the project root are
transformed on request, cached in memory and mirrored to the output directory.

Examples:
  jitserve serve                        # Serve the working directory
  jitserve serve ./web --port 3000      # Serve ./web on port 3000
  jitserve serve --sourcemap --profile  # Inline sourcemaps, log transform timings`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().String("cwd", "", "Working directory (default: current directory)")
	serveCmd.Flags().String("out", ".jitserve", "Directory transformed modules are mirrored to")
	serveCmd.Flags().String("dist", "dist", "Build output directory excluded from watching")
	serveCmd.Flags().Bool("sourcemap", false, "Inline sourcemaps in transformed modules")
	serveCmd.Flags().Bool("profile", false, "Log every transform with its duration")
	serveCmd.Flags().Bool("live-reload", true, "Inject the runtime client and push changes to browsers")
	serveCmd.Flags().Bool("watch", true, "Watch the project root for changes")
	serveCmd.Flags().Duration("debounce", config.DefaultDebounce, "Delay before reporting a batch of changes")

	bindFlags(serveCmd.Flags(), map[string]string{
		"port":        "server.port",
		"host":        "server.host",
		"cwd":         "cwd",
		"out":         "out",
		"dist":        "dist",
		"sourcemap":   "sourcemap",
		"profile":     "profile",
		"live-reload": "server.live_reload",
		"watch":       "watch.enabled",
		"debounce":    "watch.debounce",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		viper.Set("root", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("invalid log configuration: %w", err)
	}

	srv, err := server.New(server.Options{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		select {
		case <-srv.Ready():
			fmt.Fprintf(cmd.OutOrStdout(), "jitserve serving %s at http://%s\n", cfg.Root, srv.Addr())
		case <-ctx.Done():
		}
	}()

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
