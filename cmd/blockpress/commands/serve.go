package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/livetemplate/blockpress/internal/config"
	"github.com/livetemplate/blockpress/internal/server"
	"github.com/livetemplate/blockpress/internal/store"
)

var (
	servePort  int
	serveHost  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the API, editing sessions and published pages",
	Long: `Start the blockpress server.

The server exposes the document and component API under /api, editing
sessions at /ws/documents/{id} and published pages at /p/{slug}.
With --watch the configured components directory is reloaded on change.`,
	Example: `  blockpress serve
  blockpress serve --port 3000 --watch
  blockpress serve -c site/blockpress.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (overrides config)")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "reload component files on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if serveWatch && cfg.Components.WatchDir == "" {
		return fmt.Errorf("--watch needs components.watch_dir in %s", configName())
	}

	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Storage.GetDriver(), cfg.Storage.GetDSN())
	if err != nil {
		return err
	}
	defer st.Close()

	srv, err := server.New(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer srv.Close()

	if serveWatch {
		if err := srv.EnableWatch(ctx); err != nil {
			return err
		}
	}

	log.Printf("[Server] blockpress %s (%s storage)", rootCmd.Version, cfg.Storage.GetDriver())
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", cfg.Server.Addr())
	fmt.Fprintf(cmd.OutOrStdout(), "Published pages at %s/p/{slug}\n", cfg.Server.GetPublicBaseURL())
	return srv.ListenAndServe(ctx)
}

func configName() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "./" + config.FileName
}

// runContext is the context used when a command runs outside Execute.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
