package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/splidsboel/assignment3/pkg/analysis"
	"github.com/splidsboel/assignment3/pkg/fsutil"
	"github.com/splidsboel/assignment3/pkg/runner"
)

// maxMarkdownChars keeps summaries under the GitHub step summary limit.
const maxMarkdownChars = 65000

var (
	compareInputs    []string
	compareRunDir    string
	compareOutputDir string
	compareTitle     string
	compareScatter   bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Summarise result tables and compute speed-ups",
	Long: `Compare result tables. The first input is the baseline of every
speed-up. Inputs are given as label=path, or taken from the completed
algorithms of a run directory.`,
	Example: `  chbench compare --input dijkstra=dijkstra.csv --input ch=ch.csv
  chbench compare --run-dir results/runs/1700000000_abcd1234`,
	RunE: runCompare,
}

var (
	markdownRunDir string
	markdownOutput string
)

var generateMarkdownCmd = &cobra.Command{
	Use:   "generate-markdown-summary",
	Short: "Generate a Markdown summary of a run directory",
	RunE:  runGenerateMarkdown,
}

func init() {
	rootCmd.AddCommand(compareCmd, generateMarkdownCmd)

	f := compareCmd.Flags()
	f.StringArrayVar(&compareInputs, "input", nil, "result table as label=path (repeatable)")
	f.StringVar(&compareRunDir, "run-dir", "", "take inputs from a run directory")
	f.StringVar(&compareOutputDir, "output-dir", "", "directory for report artifacts (default: run dir or current dir)")
	f.StringVar(&compareTitle, "title", "", "report title")
	f.BoolVar(&compareScatter, "scatter", false, "also plot relaxed edges against distance")

	generateMarkdownCmd.Flags().StringVar(&markdownRunDir, "run-dir", "", "run directory")
	generateMarkdownCmd.Flags().StringVar(&markdownOutput, "output", "", "output file (default summary-<run id>.md)")

	_ = generateMarkdownCmd.MarkFlagRequired("run-dir")
}

func runCompare(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	inputs, err := parseInputs(compareInputs)
	if err != nil {
		return err
	}

	if compareRunDir != "" {
		fromRun, err := runInputs(compareRunDir)
		if err != nil {
			return err
		}

		inputs = append(fromRun, inputs...)
	}

	if len(inputs) == 0 {
		return fmt.Errorf("no inputs: pass --input or --run-dir")
	}

	outDir := compareOutputDir
	if outDir == "" {
		outDir = compareRunDir
	}

	if outDir == "" {
		outDir = "."
	}

	owner, err := fsutil.ParseOwner(cfg.Global.Owner)
	if err != nil {
		return fmt.Errorf("parsing owner: %w", err)
	}

	if err := fsutil.MkdirAll(outDir, owner); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	opts := runner.ReportOptions(outDir, cfg, owner)

	if compareTitle != "" {
		opts.Title = compareTitle
	}

	if compareScatter {
		opts.ScatterPath = filepath.Join(outDir, analysis.ScatterFileName)
	}

	report, err := analysis.BuildReport(log, inputs, opts)
	if err != nil {
		return err
	}

	for _, s := range report.Summaries {
		fmt.Printf("%-24s queries=%d unreachable=%d mean=%.3fms median=%.3fms\n",
			s.Label, s.Count, s.Unreachable, s.MeanTimeMS, s.MedianTimeMS)
	}

	for _, sp := range report.Speedups {
		fmt.Println(sp.String())
	}

	log.WithFields(logrus.Fields{
		"inputs":     len(inputs),
		"output_dir": outDir,
	}).Info("Comparison written")

	return nil
}

// parseInputs turns label=path arguments into analysis inputs. A bare path
// is labelled with its base name.
func parseInputs(args []string) ([]analysis.Input, error) {
	inputs := make([]analysis.Input, 0, len(args))

	for _, arg := range args {
		label, path, ok := strings.Cut(arg, "=")
		if !ok {
			path = arg
			label = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}

		if label == "" || path == "" {
			return nil, fmt.Errorf("invalid input %q, expected label=path", arg)
		}

		inputs = append(inputs, analysis.Input{Label: label, Path: path})
	}

	return inputs, nil
}

// runInputs lists the completed algorithms of a run in execution order.
func runInputs(runDir string) ([]analysis.Input, error) {
	meta, err := runner.ReadMetadata(runDir)
	if err != nil {
		return nil, err
	}

	inputs := make([]analysis.Input, 0, len(meta.Algorithms))

	for _, alg := range meta.Algorithms {
		if alg.Status != runner.AlgorithmCompleted {
			continue
		}

		inputs = append(inputs, analysis.Input{
			Label: alg.Label,
			Path:  filepath.Join(runDir, alg.Output),
		})
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("run %s has no completed algorithms", meta.ID)
	}

	return inputs, nil
}

func runGenerateMarkdown(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !runner.IsRunDir(markdownRunDir) {
		return fmt.Errorf("%s is not a run directory", markdownRunDir)
	}

	md, err := analysis.GenerateRunMarkdown(log, markdownRunDir, maxMarkdownChars)
	if err != nil {
		return fmt.Errorf("generating markdown: %w", err)
	}

	output := markdownOutput
	if output == "" {
		output = fmt.Sprintf("summary-%s.md", filepath.Base(filepath.Clean(markdownRunDir)))
	}

	if output == "-" {
		_, err := os.Stdout.WriteString(md)

		return err
	}

	owner, err := fsutil.ParseOwner(cfg.Global.Owner)
	if err != nil {
		return fmt.Errorf("parsing owner: %w", err)
	}

	if err := fsutil.WriteFile(output, []byte(md), owner); err != nil {
		return fmt.Errorf("writing markdown: %w", err)
	}

	log.WithField("output", output).Info("Markdown summary written")

	return nil
}
