package indexstore

import "time"

// Run is a single indexed experiment run.
type Run struct {
	ID                uint   `gorm:"primaryKey" json:"-"`
	Source            string `gorm:"not null;uniqueIndex:idx_runs_source_run" json:"source"`
	RunID             string `gorm:"not null;uniqueIndex:idx_runs_source_run" json:"id"`
	Timestamp         int64  `gorm:"index" json:"timestamp"`
	TimestampEnd      int64  `json:"timestamp_end,omitempty"`
	Status            string `gorm:"index" json:"status"`
	TerminationReason string `json:"termination_reason,omitempty"`

	Seed        uint64 `json:"seed"`
	Pairs       int    `json:"pairs"`
	Remap       string `json:"remap"`
	Backend     string `json:"backend"`
	SolverImage string `json:"solver_image,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Algorithms  int    `json:"algorithms"`

	HasSummaries bool `json:"has_summaries"`

	// Run labels serialized as JSON.
	LabelsJSON string `gorm:"type:text" json:"-"`

	IndexedAt   time.Time  `json:"indexed_at"`
	ReindexedAt *time.Time `json:"reindexed_at,omitempty"`
}

// AlgorithmSummary is the denormalized statistics row of one algorithm
// within a run.
type AlgorithmSummary struct {
	ID            uint    `gorm:"primaryKey" json:"-"`
	Source        string  `gorm:"not null;uniqueIndex:idx_summaries_run_label" json:"source"`
	RunID         string  `gorm:"not null;uniqueIndex:idx_summaries_run_label" json:"run_id"`
	Label         string  `gorm:"not null;uniqueIndex:idx_summaries_run_label;index" json:"label"`
	Algorithm     string  `gorm:"index" json:"algorithm,omitempty"`
	Status        string  `json:"status,omitempty"`
	Queries       int     `json:"queries"`
	Unreachable   int     `json:"unreachable"`
	MeanTimeMS    float64 `json:"mean_time_ms"`
	MedianTimeMS  float64 `json:"median_time_ms"`
	P95TimeMS     float64 `json:"p95_time_ms"`
	MeanRelaxed   float64 `json:"mean_relaxed"`
	MedianRelaxed float64 `json:"median_relaxed"`

	// Speed-up of the run's baseline over this algorithm. Zero for the
	// baseline itself and for algorithms without overlapping pairs.
	SpeedupMean   float64 `json:"speedup_mean,omitempty"`
	SpeedupMedian float64 `json:"speedup_median,omitempty"`
}
