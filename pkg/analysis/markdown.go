package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/results"
)

// RunFileName is the metadata file at the root of every run directory.
const RunFileName = "run.json"

// markdownRun mirrors the parts of runner.RunMetadata needed here. The
// runner imports this package, so the type is redeclared for decoding.
type markdownRun struct {
	ID                string                    `json:"id"`
	Timestamp         int64                     `json:"timestamp"`
	TimestampEnd      int64                     `json:"timestamp_end,omitempty"`
	Status            string                    `json:"status"`
	TerminationReason string                    `json:"termination_reason,omitempty"`
	Seed              uint64                    `json:"seed"`
	Pairs             int                       `json:"pairs"`
	Remap             string                    `json:"remap"`
	Backend           string                    `json:"backend"`
	SolverImage       string                    `json:"solver_image,omitempty"`
	Graphs            map[string]*markdownGraph `json:"graphs,omitempty"`
	Algorithms        []*markdownAlgorithm      `json:"algorithms"`
	System            *markdownSystem           `json:"system,omitempty"`
	Labels            map[string]string         `json:"labels,omitempty"`
}

type markdownGraph struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Vertices  int64  `json:"vertices"`
	Edges     int64  `json:"edges"`
	SizeBytes int64  `json:"size_bytes"`
}

type markdownAlgorithm struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Output string `json:"output"`
	Status string `json:"status,omitempty"`
}

type markdownSystem struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	KernelVersion   string  `json:"kernel_version"`
	Arch            string  `json:"arch"`
	CPUModel        string  `json:"cpu_model"`
	CPUCores        int     `json:"cpu_cores"`
	CPUMhz          float64 `json:"cpu_mhz"`
	MemoryTotalGB   float64 `json:"memory_total_gb"`
}

// MarkdownSummary renders summaries and speed-ups as a Markdown document.
func MarkdownSummary(title string, summaries []Summary, speedups []Speedup) string {
	var sb strings.Builder

	sb.Grow(2048)

	fmt.Fprintf(&sb, "# %s\n\n", title)
	writeSummaryTable(&sb, summaries)
	writeSpeedups(&sb, speedups)

	return sb.String()
}

// GenerateRunMarkdown builds a Markdown report for a run directory from its
// run.json and the result tables it lists. Tables that are missing (for
// example in failed runs) are skipped. The output is capped at maxChars
// characters when maxChars is positive.
func GenerateRunMarkdown(log logrus.FieldLogger, runDir string, maxChars int) (string, error) {
	data, err := os.ReadFile(filepath.Join(runDir, RunFileName))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", RunFileName, err)
	}

	var run markdownRun
	if err := json.Unmarshal(data, &run); err != nil {
		return "", fmt.Errorf("parsing %s: %w", RunFileName, err)
	}

	tables := make([]*results.Table, 0, len(run.Algorithms))

	for _, alg := range run.Algorithms {
		label := alg.Label
		if label == "" {
			label = alg.Name
		}

		t, err := results.Read(filepath.Join(runDir, alg.Output), label)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return "", err
		}

		tables = append(tables, t)
	}

	report := Compare(log, tables)

	var sb strings.Builder

	sb.Grow(4096)

	id := run.ID
	if id == "" {
		id = filepath.Base(runDir)
	}

	fmt.Fprintf(&sb, "# Experiment Run: %s\n\n", id)
	writeOverview(&sb, &run)
	writeGraphs(&sb, run.Graphs)
	writeSummaryTable(&sb, report.Summaries)
	writeSpeedups(&sb, report.Speedups)
	writeSystem(&sb, run.System)
	writeLabels(&sb, run.Labels)

	return capChars(sb.String(), maxChars), nil
}

func writeOverview(sb *strings.Builder, run *markdownRun) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if run.Status != "" {
		fmt.Fprintf(sb, "| Status | %s |\n", run.Status)
	}

	if run.TerminationReason != "" {
		fmt.Fprintf(sb, "| Termination Reason | %s |\n", run.TerminationReason)
	}

	fmt.Fprintf(sb, "| Seed | %d |\n", run.Seed)
	fmt.Fprintf(sb, "| Pairs | %d |\n", run.Pairs)

	if run.Remap != "" {
		fmt.Fprintf(sb, "| Remap | %s |\n", run.Remap)
	}

	if run.Backend != "" {
		fmt.Fprintf(sb, "| Solver Backend | %s |\n", run.Backend)
	}

	if run.SolverImage != "" {
		fmt.Fprintf(sb, "| Solver Image | `%s` |\n", run.SolverImage)
	}

	if run.Timestamp > 0 {
		t := time.Unix(run.Timestamp, 0).UTC()
		fmt.Fprintf(sb, "| Started | %s |\n", t.Format("2006-01-02 15:04:05 UTC"))
	}

	if run.TimestampEnd > 0 && run.Timestamp > 0 {
		dur := time.Duration(run.TimestampEnd-run.Timestamp) * time.Second
		fmt.Fprintf(sb, "| Duration | %s |\n", formatDuration(dur))
	}

	sb.WriteByte('\n')
}

func writeGraphs(sb *strings.Builder, graphs map[string]*markdownGraph) {
	if len(graphs) == 0 {
		return
	}

	sb.WriteString("## Graphs\n\n")
	sb.WriteString("| Role | Path | Format | Vertices | Edges |\n")
	sb.WriteString("|---|---|---|---|---|\n")

	roles := make([]string, 0, len(graphs))
	for role := range graphs {
		roles = append(roles, role)
	}

	sort.Strings(roles)

	for _, role := range roles {
		g := graphs[role]
		fmt.Fprintf(sb, "| %s | `%s` | %s | %d | %d |\n", role, g.Path, g.Format, g.Vertices, g.Edges)
	}

	sb.WriteByte('\n')
}

func writeSummaryTable(sb *strings.Builder, summaries []Summary) {
	if len(summaries) == 0 {
		return
	}

	sb.WriteString("## Query Statistics\n\n")
	sb.WriteString("| Algorithm | Queries | Mean (ms) | Median (ms) | P95 (ms) " +
		"| Mean relaxed | Median relaxed | Unreachable |\n")
	sb.WriteString("|---|---|---|---|---|---|---|---|\n")

	for _, s := range summaries {
		fmt.Fprintf(sb, "| %s | %d | %s | %s | %s | %s | %s | %d |\n",
			s.Label,
			s.Count,
			formatFloat(s.MeanTimeMS, 3),
			formatFloat(s.MedianTimeMS, 3),
			formatFloat(s.P95TimeMS, 3),
			formatFloat(s.MeanRelaxed, 0),
			formatFloat(s.MedianRelaxed, 0),
			s.Unreachable,
		)
	}

	sb.WriteByte('\n')
}

func writeSpeedups(sb *strings.Builder, speedups []Speedup) {
	if len(speedups) == 0 {
		return
	}

	sb.WriteString("## Speed-up\n\n")
	sb.WriteString("| Baseline | Contender | Matched Pairs | Mean | Median |\n")
	sb.WriteString("|---|---|---|---|---|\n")

	for _, s := range speedups {
		fmt.Fprintf(sb, "| %s | %s | %d | %.2fx | %.2fx |\n",
			s.Baseline, s.Contender, s.Pairs, s.Mean, s.Median)
	}

	sb.WriteByte('\n')
}

func writeSystem(sb *strings.Builder, sys *markdownSystem) {
	if sys == nil {
		return
	}

	sb.WriteString("## System\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if sys.Hostname != "" {
		fmt.Fprintf(sb, "| Hostname | %s |\n", sys.Hostname)
	}

	if sys.CPUModel != "" {
		fmt.Fprintf(sb, "| CPU | %s |\n", sys.CPUModel)
	}

	if sys.CPUCores > 0 {
		fmt.Fprintf(sb, "| Cores | %d |\n", sys.CPUCores)
	}

	if sys.CPUMhz > 0 {
		fmt.Fprintf(sb, "| CPU MHz | %.1f |\n", sys.CPUMhz)
	}

	if sys.MemoryTotalGB > 0 {
		fmt.Fprintf(sb, "| Memory | %.1f GB |\n", sys.MemoryTotalGB)
	}

	if sys.Platform != "" {
		platform := sys.Platform
		if sys.PlatformVersion != "" {
			platform += " " + sys.PlatformVersion
		}

		fmt.Fprintf(sb, "| Platform | %s |\n", platform)
	}

	if sys.Arch != "" {
		fmt.Fprintf(sb, "| Arch | %s |\n", sys.Arch)
	}

	if sys.KernelVersion != "" {
		fmt.Fprintf(sb, "| Kernel | %s |\n", sys.KernelVersion)
	}

	sb.WriteByte('\n')
}

func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}

	sb.WriteString("## Labels\n\n")
	sb.WriteString("| Label | Value |\n")
	sb.WriteString("|---|---|\n")

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(sb, "| %s | %s |\n", k, labels[k])
	}

	sb.WriteByte('\n')
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) {
		return "-"
	}

	return fmt.Sprintf("%.*f", prec, v)
}

// formatDuration formats a duration as "1h 2m 3s", dropping leading zero
// units. Sub-second durations are shown in milliseconds.
func formatDuration(d time.Duration) string {
	if d > 0 && d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

const truncationNotice = "\n_Output truncated._\n"

func capChars(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}

	cut := maxChars - len(truncationNotice)
	if cut < 0 {
		cut = 0
	}

	// Back up to a line boundary so tables stay intact.
	if i := strings.LastIndexByte(s[:cut], '\n'); i >= 0 {
		cut = i + 1
	}

	return s[:cut] + truncationNotice
}
