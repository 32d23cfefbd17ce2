package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/graphfile"
	"github.com/splidsboel/assignment3/pkg/workload"
)

var (
	pairsCount  int
	pairsSeed   uint64
	pairsGraph  string
	pairsRemap  string
	pairsOutput string
)

var generatePairsCmd = &cobra.Command{
	Use:   "generate-pairs",
	Short: "Write the deterministic query workload",
	Long: `Generate the seeded source/target pairs, optionally remapped onto the
vertices of a graph, and write them one "source target" pair per line.`,
	RunE: runGeneratePairs,
}

func init() {
	rootCmd.AddCommand(generatePairsCmd)

	f := generatePairsCmd.Flags()
	f.IntVar(&pairsCount, "pairs", config.DefaultPairs, "number of pairs")
	f.Uint64Var(&pairsSeed, "seed", config.DefaultSeed, "workload seed")
	f.StringVar(&pairsGraph, "graph", "", "remap the pairs onto the vertices of this graph")
	f.StringVar(&pairsRemap, "remap", config.DefaultRemap, "pair remap strategy (modulo, uniform)")
	f.StringVar(&pairsOutput, "output", "-", "output file (- for stdout)")
}

func runGeneratePairs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("seed") {
		pairsSeed = cfg.Experiment.Seed
	}

	if !cmd.Flags().Changed("pairs") {
		pairsCount = cfg.Experiment.Pairs
	}

	if !cmd.Flags().Changed("remap") {
		pairsRemap = cfg.Experiment.Remap
	}

	gen, err := workload.NewGenerator(pairsSeed, workload.Domain{
		Min: cfg.Experiment.Domain.Min,
		Max: cfg.Experiment.Domain.Max,
	})
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	var pairs []workload.Pair

	if pairsGraph == "" {
		pairs, err = gen.Generate(pairsCount)
	} else {
		var desc graphfile.Descriptor

		desc, err = graphfile.Load(pairsGraph)
		if err != nil {
			return fmt.Errorf("loading graph: %w", err)
		}

		pairs, err = workload.Build(gen, workload.RemapStrategy(pairsRemap), desc.VertexIDs(), pairsCount)
	}

	if err != nil {
		return fmt.Errorf("generating pairs: %w", err)
	}

	var w io.Writer = os.Stdout

	if pairsOutput != "-" {
		f, err := os.Create(pairsOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()

		w = f
	}

	if err := workload.WritePairs(w, pairs); err != nil {
		return fmt.Errorf("writing pairs: %w", err)
	}

	log.WithFields(logrus.Fields{
		"pairs":  len(pairs),
		"seed":   pairsSeed,
		"output": pairsOutput,
	}).Debug("Pairs generated")

	return nil
}
