package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/splidsboel/assignment3/pkg/cpufreq"
	"github.com/splidsboel/assignment3/pkg/docker"
)

var cleanupForce bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftovers of interrupted experiments",
	Long: `Remove engine containers left behind by the docker backend and restore
CPU frequency settings an interrupted run never put back.`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "skip the confirmation prompt")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	mgr := cleanupDockerManager(ctx)
	if mgr != nil {
		defer func() { _ = mgr.Stop() }()
	}

	var containers []docker.ContainerInfo

	if mgr != nil {
		containers, err = mgr.ListContainers(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to list containers")
		}
	}

	stateFiles, err := cpufreq.ListOrphanedStateFiles(cfg.CPUFreq.StateDir)
	if err != nil {
		log.WithError(err).Warn("Failed to list CPU frequency state files")
	}

	if len(containers) == 0 && len(stateFiles) == 0 {
		log.Info("No chbench leftovers found")

		return nil
	}

	if len(containers) > 0 {
		fmt.Printf("\nContainers to be removed (%d):\n", len(containers))

		for _, c := range containers {
			fmt.Printf("  - %s (%s, %s)\n", c.Name, c.Image, c.State)
		}
	}

	if len(stateFiles) > 0 {
		fmt.Printf("\nCPU frequency state files to be restored and removed (%d):\n", len(stateFiles))

		for _, sf := range stateFiles {
			fmt.Printf("  - %s (created: %s)\n", sf.Path, sf.Timestamp.Format("2006-01-02 15:04:05"))
		}
	}

	fmt.Println()

	if !cleanupForce {
		fmt.Print("Are you sure you want to clean these up? [y/N] ")

		response, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			log.Info("Cleanup cancelled")

			return nil
		}
	}

	for _, c := range containers {
		log.WithField("container", c.Name).Info("Removing container")

		if err := mgr.RemoveContainer(ctx, c.ID); err != nil {
			log.WithError(err).WithField("container", c.Name).Warn("Failed to remove container")
		}
	}

	for _, sf := range stateFiles {
		if err := cpufreq.RestoreFromStateFile(log, sf.Path, cfg.CPUFreq.SysfsPath); err != nil {
			log.WithError(err).WithField("state_file", sf.Path).Warn("Failed to restore from state file")
		}
	}

	log.Info("Cleanup completed")

	return nil
}

// cleanupDockerManager returns nil when no docker daemon is reachable.
func cleanupDockerManager(ctx context.Context) docker.Manager {
	mgr, err := docker.NewManager(log)
	if err != nil {
		log.WithError(err).Debug("Docker runtime not available for cleanup")

		return nil
	}

	if err := mgr.Start(ctx); err != nil {
		log.WithError(err).Debug("Docker runtime not available for cleanup")

		_ = mgr.Stop()

		return nil
	}

	return mgr
}
