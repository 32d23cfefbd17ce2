package runner

import "github.com/splidsboel/assignment3/pkg/sysinfo"

// RunMetadata is the content of run.json.
type RunMetadata struct {
	ID                string                    `json:"id"`
	Timestamp         int64                     `json:"timestamp"`
	TimestampEnd      int64                     `json:"timestamp_end,omitempty"`
	Status            string                    `json:"status"`
	TerminationReason string                    `json:"termination_reason,omitempty"`
	Seed              uint64                    `json:"seed"`
	Pairs             int                       `json:"pairs"`
	Warmup            int                       `json:"warmup,omitempty"`
	Domain            DomainMetadata            `json:"domain"`
	Remap             string                    `json:"remap"`
	Backend           string                    `json:"backend"`
	SolverCommand     []string                  `json:"solver_command,omitempty"`
	SolverImage       string                    `json:"solver_image,omitempty"`
	ImageDigest       string                    `json:"image_digest,omitempty"`
	Graphs            map[string]*GraphMetadata `json:"graphs,omitempty"`
	Algorithms        []*AlgorithmMetadata      `json:"algorithms"`
	System            *sysinfo.SystemInfo       `json:"system,omitempty"`
	Labels            map[string]string         `json:"labels,omitempty"`
}

// DomainMetadata is the raw workload range.
type DomainMetadata struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// GraphMetadata describes a graph file used by the run, keyed by role.
type GraphMetadata struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	Vertices  int64  `json:"vertices"`
	Edges     int64  `json:"edges"`
	SizeBytes int64  `json:"size_bytes"`
}

// AlgorithmMetadata records one measured configuration and its outcome.
type AlgorithmMetadata struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Mode       string `json:"mode"`
	Graph      string `json:"graph"`
	Output     string `json:"output"`
	Queries    int    `json:"queries,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Status     string `json:"status,omitempty"`
}
