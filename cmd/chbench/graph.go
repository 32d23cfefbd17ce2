package main

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/fsutil"
	"github.com/splidsboel/assignment3/pkg/graphfile"
	"github.com/splidsboel/assignment3/pkg/osmgraph"
	"github.com/splidsboel/assignment3/pkg/runner"
	"github.com/splidsboel/assignment3/pkg/solver"
)

var inspectGraphCmd = &cobra.Command{
	Use:   "inspect-graph <graph-file>...",
	Short: "Report the format and size of graph files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInspectGraph,
}

var (
	preprocessInput  string
	preprocessOutput string
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Build the ranked graph with the engine",
	Long: `Stream the plain graph into the engine's preprocess mode and verify the
written file carries rank metadata.`,
	RunE: runPreprocess,
}

var (
	osmInput    string
	osmOutput   string
	osmFormat   string
	osmSimplify bool
	osmHighways []string
)

var convertOSMCmd = &cobra.Command{
	Use:   "convert-osm",
	Short: "Convert an OpenStreetMap extract into a plain graph file",
	RunE:  runConvertOSM,
}

func init() {
	rootCmd.AddCommand(inspectGraphCmd, preprocessCmd, convertOSMCmd)

	preprocessCmd.Flags().StringVar(&preprocessInput, "original-graph", "", "plain graph file (default graphs.original)")
	preprocessCmd.Flags().StringVar(&preprocessOutput, "output", "", "ranked graph output (default graphs.augmented)")

	f := convertOSMCmd.Flags()
	f.StringVar(&osmInput, "input", "", "OSM extract (.osm.pbf, .osm or .xml)")
	f.StringVar(&osmOutput, "output", "", "plain graph output file")
	f.StringVar(&osmFormat, "format", "", "input format (pbf, xml); inferred from the extension when empty")
	f.BoolVar(&osmSimplify, "simplify", false, "merge way-interior nodes that no other way shares")
	f.StringSliceVar(&osmHighways, "highway", nil, "highway tag values to keep (default: common road classes)")

	_ = convertOSMCmd.MarkFlagRequired("input")
	_ = convertOSMCmd.MarkFlagRequired("output")
}

func runInspectGraph(_ *cobra.Command, args []string) error {
	for _, path := range args {
		desc, err := graphfile.Load(path)
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", path, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		h := desc.Header()

		fmt.Printf("%s\n", path)
		fmt.Printf("  format:   %s\n", desc.Format())
		fmt.Printf("  vertices: %d\n", len(desc.VertexIDs()))
		fmt.Printf("  edges:    %d\n", h.Edges)
		fmt.Printf("  size:     %s\n", units.HumanSize(float64(info.Size())))
	}

	return nil
}

func runPreprocess(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	input := preprocessInput
	if input == "" {
		input = cfg.Graphs.Original
	}

	output := preprocessOutput
	if output == "" {
		output = cfg.Graphs.Augmented
	}

	if input == "" || output == "" {
		return fmt.Errorf("both an original graph and an output path are required")
	}

	if len(cfg.Solver.Command) == 0 {
		return fmt.Errorf("solver.command is required")
	}

	// The input must be plain before the engine sees it.
	desc, err := graphfile.Load(input)
	if err != nil {
		return fmt.Errorf("loading original graph: %w", err)
	}

	if err := graphfile.Expect(desc, graphfile.FormatPlain); err != nil {
		return err
	}

	if err := fsutil.EnsureParent(output, nil); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := solver.Preprocess(ctx, log, runner.SolverOptions(cfg), input, output); err != nil {
		return fmt.Errorf("preprocessing: %w", err)
	}

	ranked, err := graphfile.Load(output)
	if err != nil {
		return fmt.Errorf("loading ranked graph: %w", err)
	}

	if err := graphfile.Expect(ranked, graphfile.FormatRanked); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"output":   output,
		"vertices": len(ranked.VertexIDs()),
		"role":     config.GraphAugmented,
	}).Info("Ranked graph written")

	return nil
}

func runConvertOSM(cmd *cobra.Command, _ []string) error {
	format := osmgraph.Format(osmFormat)
	if format == "" {
		var err error

		format, err = osmgraph.FormatFromPath(osmInput)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	g, err := osmgraph.Build(ctx, log, osmgraph.OpenFile(osmInput, format), osmgraph.Options{
		Highways: osmHighways,
		Simplify: osmSimplify,
	})
	if err != nil {
		return fmt.Errorf("converting %s: %w", osmInput, err)
	}

	f, err := fsutil.Create(osmOutput, nil)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}

	if err := osmgraph.Write(f, g); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}

	log.WithFields(logrus.Fields{
		"output":   osmOutput,
		"vertices": len(g.Vertices),
		"edges":    len(g.Edges),
	}).Info("Graph written")

	return nil
}
