// Package commands implements the blockpress command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/config"
	"github.com/livetemplate/blockpress/internal/server"
	"github.com/livetemplate/blockpress/internal/store"
)

// defaultTimeout bounds one-shot commands.
const defaultTimeout = 30 * time.Second

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "blockpress",
	Short: "Block-based document authoring and publishing",
	Long: `blockpress stores documents made of prose and component sections,
edits them over WebSocket sessions and publishes immutable versions.

Quick Start:
  blockpress init my-site          Create a project
  blockpress serve                 Start the server
  blockpress docs list             List documents
  blockpress docs publish <slug>   Publish the current draft`,
	Version:       blockpress.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./"+config.FileName+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose logging")
	rootCmd.SetVersionTemplate("blockpress version {{.Version}}\n")
}

// loadConfig reads --config, or blockpress.yaml in the working directory.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		if _, statErr := os.Stat(cfgFile); statErr != nil {
			return nil, fmt.Errorf("config file not found: %s", cfgFile)
		}
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Server.Debug = true
	}
	return cfg, nil
}

// app is the server wiring used by one-shot commands.
type app struct {
	cfg   *config.Config
	store store.Store
	srv   *server.Server
}

// openApp opens the configured store and builds the services over it
// without listening.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Storage.GetDriver(), cfg.Storage.GetDSN())
	if err != nil {
		return nil, err
	}
	srv, err := server.New(ctx, cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &app{cfg: cfg, store: st, srv: srv}, nil
}

func (a *app) Close() error {
	return errors.Join(a.srv.Close(), a.store.Close())
}

// withApp runs fn against a freshly opened app under defaultTimeout.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(runContext(cmd), defaultTimeout)
	defer cancel()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
