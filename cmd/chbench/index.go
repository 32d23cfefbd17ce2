package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/splidsboel/assignment3/pkg/api"
	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/indexer"
	"github.com/splidsboel/assignment3/pkg/indexstore"
	"github.com/splidsboel/assignment3/pkg/storage"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index run directories into the database once",
	RunE:  runIndex,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve indexed runs over HTTP",
	Long: `Start the results API. Runs under the results directory (and the S3
bucket when index.s3 is set) are indexed in the background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(indexCmd, serveCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(config.ValidateOpts{}); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	store := indexstore.NewStore(log, &cfg.Index.Database)
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close index store")
		}
	}()

	readers := []storage.Reader{storage.NewLocalReader(cfg.Global.ResultsDir)}
	if cfg.Index.S3 {
		readers = append(readers, storage.NewS3Reader(&cfg.Upload.S3))
	}

	idx := indexer.NewIndexer(log, store, readers, cfg.Index.Interval, cfg.Index.Concurrency)

	stats, err := idx.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	log.WithFields(logrus.Fields{
		"indexed":   stats.Indexed,
		"reindexed": stats.Reindexed,
		"failed":    stats.Failed,
	}).Info("Indexing complete")

	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(config.ValidateOpts{}); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	srv := api.NewServer(log, cfg)
	if err := srv.Start(ctx); err != nil {
		_ = srv.Stop()

		return fmt.Errorf("starting API server: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down API server")

	return srv.Stop()
}
