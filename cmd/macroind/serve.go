package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"macroind/internal/classification"
	"macroind/internal/logger"
	"macroind/internal/server"
	"macroind/internal/storage"
)

var (
	port          string
	withNormalize bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve selections, charts and downloads over the canonical dataset",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (default: $PORT)")
	serveCmd.Flags().BoolVar(&withNormalize, "allow-normalize", false, "Enable POST /api/normalize")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var runner server.Runner
	if withNormalize {
		p, err := a.pipeline(false)
		if err != nil {
			return err
		}
		runner = p
	}

	srv := server.NewServer(a.cfg, a.domain, a.storage, runner)
	table, err := classification.Load(a.cfg.ClassificationPath)
	if err != nil {
		return err
	}
	srv.Countries = table
	if err := srv.Reload(ctx); err != nil {
		// An empty store is fine: queries answer 503 until the first normalize
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		a.log.Warn("canonical dataset not found, run normalize first", logger.Fields{"file": a.domain.Output})
	}

	addr := ":" + a.cfg.Port
	if port != "" {
		addr = ":" + port
	}
	return srv.ListenAndServe(ctx, addr)
}
