package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/filingrag/internal/api"
	"github.com/dgallion1/filingrag/internal/pipeline"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the filingrag HTTP API",
	Long: `Start the HTTP API and the ingest worker pool.

Endpoints:
  POST   /api/ingest              queue filings of one CIK
  GET    /api/jobs/{id}           ingest job progress
  POST   /api/retrieve            filtered retrieval (?answer=true to generate)
  POST   /api/parse               parse an uploaded 10-K document
  GET    /api/filings/{accession} whether a filing is indexed
  DELETE /api/filings/{accession} drop a filing from the index
  GET    /health                  liveness

The config file is watched; the non-informative phrase list and log level
are applied without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		if servePort != "" {
			if err := a.cm.Override("port", servePort); err != nil {
				return err
			}
			a.cfg = a.cm.Get()
		}
		cfg := a.cfg
		if err := cfg.ValidateForServe(); err != nil {
			return err
		}
		a.cm.WatchConfig()

		orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
			Workers:      cfg.Workers,
			MaxQueueSize: cfg.MaxQueueSize,
			JobTTL:       cfg.JobTTL,
		}, a.worker(), a.log)
		orch.Start(ctx)

		srv := api.NewServer(api.Deps{
			Jobs:      orch,
			Retriever: a.retriever(),
			Index:     a.store,
			Parser:    a.parser,
			Generator: a.generator(),
			Stats:     a.stats,
		}, api.Config{
			APIKey:          cfg.APIKey,
			GenerationModel: cfg.Generation.Model,
		}, a.log)

		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.Info("starting filingrag", "port", cfg.Port, "db_path", cfg.DBPath)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			orch.Stop()
			return err
		case <-ctx.Done():
		}

		a.log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = httpServer.Shutdown(shutdownCtx)
		orch.Stop()
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (overrides config)")

	rootCmd.AddCommand(serveCmd)
}
