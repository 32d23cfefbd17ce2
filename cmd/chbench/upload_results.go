package main

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/runner"
	"github.com/splidsboel/assignment3/pkg/upload"
)

var uploadResultDir string

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload a run directory to S3",
	RunE:  runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)

	uploadResultsCmd.Flags().StringVar(&uploadResultDir, "result-dir", "", "run directory to upload")
	_ = uploadResultsCmd.MarkFlagRequired("result-dir")
}

func runUploadResults(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !cfg.Upload.S3.Enabled {
		return fmt.Errorf("upload.s3.enabled must be true to upload results")
	}

	if err := cfg.Validate(config.ValidateOpts{}); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if !runner.IsRunDir(uploadResultDir) {
		return fmt.Errorf("%s is not a run directory", uploadResultDir)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	uploader, err := upload.NewS3Uploader(log, &cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("upload preflight failed: %w", err)
	}

	summary, err := uploader.Upload(ctx, uploadResultDir)
	if err != nil {
		return fmt.Errorf("uploading results: %w", err)
	}

	log.WithFields(logrus.Fields{
		"prefix": summary.Prefix,
		"files":  summary.Files,
		"size":   units.HumanSize(float64(summary.Bytes)),
	}).Info("Results uploaded")

	return nil
}
