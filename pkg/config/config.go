package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/splidsboel/assignment3/pkg/cpufreq"
)

// EnvPrefix is prepended to every environment override, so
// experiment.seed becomes CHBENCH_EXPERIMENT_SEED.
const EnvPrefix = "CHBENCH"

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultResultsDir is the default directory for experiment runs.
	DefaultResultsDir = "./results"

	// DefaultSeed is the workload seed used when none is configured.
	DefaultSeed uint64 = 42

	// DefaultPairs is the number of query pairs per run.
	DefaultPairs = 1000

	// DefaultDomainMin and DefaultDomainMax bound the raw workload values.
	DefaultDomainMin int64 = 115724
	DefaultDomainMax int64 = 5423454068

	// DefaultRemap is the pair remapping strategy.
	DefaultRemap = "modulo"

	// DefaultBackend is the solver backend.
	DefaultBackend = "single"

	// DefaultSolverTimeout bounds every engine invocation.
	DefaultSolverTimeout = 600 * time.Second

	// DefaultStderrLimit caps stderr excerpts in error messages.
	DefaultStderrLimit = 500

	// DefaultStdoutSample caps stdout excerpts in parse errors.
	DefaultStdoutSample = 200

	// DefaultPullPolicy is the default image pull policy.
	DefaultPullPolicy = "if-not-present"

	// DefaultGraphMount is where graph directories appear inside containers.
	DefaultGraphMount = "/graphs"

	// DefaultUploadConcurrency is the number of parallel S3 uploads.
	DefaultUploadConcurrency = 4

	// DefaultIndexDriver is the database driver of the run index.
	DefaultIndexDriver = "sqlite"

	// DefaultIndexInterval is the pause between background indexing passes.
	DefaultIndexInterval = 5 * time.Minute

	// DefaultIndexConcurrency is the number of runs indexed in parallel.
	DefaultIndexConcurrency = 4

	// DefaultAPIListen is the listen address of the results API.
	DefaultAPIListen = ":9090"
)

// Graph roles referenced by algorithms.
const (
	GraphOriginal  = "original"
	GraphAugmented = "augmented"
)

// Config is the root configuration for chbench.
type Config struct {
	Global     GlobalConfig      `yaml:"global" mapstructure:"global"`
	Experiment ExperimentConfig  `yaml:"experiment" mapstructure:"experiment"`
	Graphs     GraphsConfig      `yaml:"graphs" mapstructure:"graphs"`
	Solver     SolverConfig      `yaml:"solver" mapstructure:"solver"`
	Algorithms []AlgorithmConfig `yaml:"algorithms" mapstructure:"algorithms"`
	Analysis   AnalysisConfig    `yaml:"analysis" mapstructure:"analysis"`
	CPUFreq    CPUFreqConfig     `yaml:"cpufreq,omitempty" mapstructure:"cpufreq"`
	Upload     UploadConfig      `yaml:"upload,omitempty" mapstructure:"upload"`
	Index      IndexConfig       `yaml:"index,omitempty" mapstructure:"index"`
	API        APIConfig         `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel   string        `yaml:"log_level" mapstructure:"log_level"`
	LogFile    LogFileConfig `yaml:"log_file,omitempty" mapstructure:"log_file"`
	ResultsDir string        `yaml:"results_dir" mapstructure:"results_dir"`
	// Owner is a "uid:gid" pair applied to every file written.
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// LogFileConfig enables a rotating log file next to stdout.
type LogFileConfig struct {
	Path       string `yaml:"path,omitempty" mapstructure:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups,omitempty" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress,omitempty" mapstructure:"compress"`
}

// ExperimentConfig controls the query workload.
type ExperimentConfig struct {
	Seed   uint64            `yaml:"seed" mapstructure:"seed"`
	Pairs  int               `yaml:"pairs" mapstructure:"pairs"`
	Remap  string            `yaml:"remap" mapstructure:"remap"`
	Warmup int               `yaml:"warmup,omitempty" mapstructure:"warmup"`
	Domain DomainConfig      `yaml:"domain" mapstructure:"domain"`
	Labels map[string]string `yaml:"labels,omitempty" mapstructure:"labels"`
}

// DomainConfig is the closed range raw workload values are drawn from.
type DomainConfig struct {
	Min int64 `yaml:"min" mapstructure:"min"`
	Max int64 `yaml:"max" mapstructure:"max"`
}

// GraphsConfig names the two graph files of an experiment.
type GraphsConfig struct {
	// Original is the plain graph without vertex ranks.
	Original string `yaml:"original,omitempty" mapstructure:"original"`
	// Augmented is the preprocessed graph carrying vertex ranks.
	Augmented string `yaml:"augmented,omitempty" mapstructure:"augmented"`
}

// SolverConfig describes how the shortest-path engine is launched.
type SolverConfig struct {
	Backend          string            `yaml:"backend" mapstructure:"backend"`
	Command          []string          `yaml:"command" mapstructure:"command"`
	Dir              string            `yaml:"dir,omitempty" mapstructure:"dir"`
	Environment      map[string]string `yaml:"environment,omitempty" mapstructure:"environment"`
	Timeout          time.Duration     `yaml:"timeout" mapstructure:"timeout"`
	StderrLimit      int               `yaml:"stderr_limit" mapstructure:"stderr_limit"`
	StdoutSample     int               `yaml:"stdout_sample" mapstructure:"stdout_sample"`
	ProgressInterval int               `yaml:"progress_interval,omitempty" mapstructure:"progress_interval"`
	Docker           DockerConfig      `yaml:"docker,omitempty" mapstructure:"docker"`
}

// DockerConfig configures the docker solver backend.
type DockerConfig struct {
	Image      string `yaml:"image,omitempty" mapstructure:"image"`
	PullPolicy string `yaml:"pull_policy,omitempty" mapstructure:"pull_policy"`
	GraphMount string `yaml:"graph_mount,omitempty" mapstructure:"graph_mount"`
	CpusetCpus string `yaml:"cpuset_cpus,omitempty" mapstructure:"cpuset_cpus"`
	// Memory accepts human sizes such as "4g".
	Memory string `yaml:"memory,omitempty" mapstructure:"memory"`
}

// AlgorithmConfig defines one measured configuration.
type AlgorithmConfig struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Label  string `yaml:"label,omitempty" mapstructure:"label"`
	Mode   string `yaml:"mode" mapstructure:"mode"`
	Graph  string `yaml:"graph" mapstructure:"graph"`
	Output string `yaml:"output" mapstructure:"output"`
}

// DisplayLabel returns the label used in reports.
func (a *AlgorithmConfig) DisplayLabel() string {
	if a.Label != "" {
		return a.Label
	}

	return a.Name
}

// AnalysisConfig controls the post-run report.
type AnalysisConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Scatter bool   `yaml:"scatter" mapstructure:"scatter"`
	Title   string `yaml:"title,omitempty" mapstructure:"title"`
}

// CPUFreqConfig pins CPU frequency while algorithms are measured.
type CPUFreqConfig struct {
	Frequency  string `yaml:"frequency,omitempty" mapstructure:"frequency"`
	Governor   string `yaml:"governor,omitempty" mapstructure:"governor"`
	TurboBoost *bool  `yaml:"turbo_boost,omitempty" mapstructure:"turbo_boost"`
	// CPUs is a cpuset such as "0-3". Empty falls back to
	// solver.docker.cpuset_cpus, then to every online CPU.
	CPUs      string `yaml:"cpus,omitempty" mapstructure:"cpus"`
	SysfsPath string `yaml:"sysfs_path,omitempty" mapstructure:"sysfs_path"`
	StateDir  string `yaml:"state_dir,omitempty" mapstructure:"state_dir"`
}

// Enabled reports whether any frequency setting is requested.
func (c *CPUFreqConfig) Enabled() bool {
	return c.Frequency != "" || c.Governor != "" || c.TurboBoost != nil
}

// Settings converts the section for the cpufreq manager. A frequency
// without a governor implies "performance".
func (c *CPUFreqConfig) Settings() *cpufreq.Settings {
	governor := c.Governor
	if governor == "" && c.Frequency != "" {
		governor = "performance"
	}

	return &cpufreq.Settings{
		Frequency:  c.Frequency,
		Governor:   governor,
		TurboBoost: c.TurboBoost,
	}
}

// CPUFreqCPUs resolves the CPUs to pin. Nil means all online CPUs.
func (c *Config) CPUFreqCPUs() ([]int, error) {
	set := c.CPUFreq.CPUs
	if set == "" && c.Solver.Backend == "docker" {
		set = c.Solver.Docker.CpusetCpus
	}

	return cpufreq.ParseCPUList(set)
}

// UploadConfig contains result upload settings.
type UploadConfig struct {
	S3 S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3Config configures uploads to an S3 compatible bucket.
type S3Config struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty" mapstructure:"force_path_style"`
	Concurrency     int    `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
}

// IndexConfig configures the run index database.
type IndexConfig struct {
	Database    DatabaseConfig `yaml:"database" mapstructure:"database"`
	Interval    time.Duration  `yaml:"interval,omitempty" mapstructure:"interval"`
	Concurrency int            `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	// S3 also indexes runs uploaded to the upload.s3 bucket.
	S3 bool `yaml:"s3,omitempty" mapstructure:"s3"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// APIConfig contains the results API settings.
type APIConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	Auth        BasicAuthConfig `yaml:"auth,omitempty" mapstructure:"auth"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// BasicAuthConfig configures username/password authentication.
type BasicAuthConfig struct {
	Enabled bool            `yaml:"enabled" mapstructure:"enabled"`
	Users   []BasicAuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// BasicAuthUser defines a basic auth user from config. Password holds a
// bcrypt hash.
type BasicAuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// DefaultAlgorithms returns the three reference configurations.
func DefaultAlgorithms() []AlgorithmConfig {
	return []AlgorithmConfig{
		{
			Name:   "dijkstra",
			Label:  "Dijkstra",
			Mode:   "query-dijkstra",
			Graph:  GraphOriginal,
			Output: "regular/dijkstra_results.csv",
		},
		{
			Name:   "bidirectional",
			Label:  "Bidirectional",
			Mode:   "query-raw",
			Graph:  GraphOriginal,
			Output: "regular/bidirectional_results.csv",
		},
		{
			Name:   "ch",
			Label:  "CH",
			Mode:   "query",
			Graph:  GraphAugmented,
			Output: "augmented/bidirectional_results.csv",
		},
	}
}

// Load reads and merges the configuration files in order, applies
// CHBENCH_* environment overrides and fills in defaults. With no paths
// only defaults and the environment are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		v.SetConfigFile(path)

		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	var cfg Config

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every scalar key so the environment can override
// it even when no file mentions it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("global.results_dir", DefaultResultsDir)
	v.SetDefault("global.owner", "")
	v.SetDefault("global.log_file.path", "")

	v.SetDefault("experiment.seed", DefaultSeed)
	v.SetDefault("experiment.pairs", DefaultPairs)
	v.SetDefault("experiment.remap", DefaultRemap)
	v.SetDefault("experiment.warmup", 0)
	v.SetDefault("experiment.domain.min", DefaultDomainMin)
	v.SetDefault("experiment.domain.max", DefaultDomainMax)

	v.SetDefault("graphs.original", "")
	v.SetDefault("graphs.augmented", "")

	v.SetDefault("solver.backend", DefaultBackend)
	v.SetDefault("solver.dir", "")
	v.SetDefault("solver.timeout", DefaultSolverTimeout)
	v.SetDefault("solver.stderr_limit", DefaultStderrLimit)
	v.SetDefault("solver.stdout_sample", DefaultStdoutSample)
	v.SetDefault("solver.progress_interval", 0)
	v.SetDefault("solver.docker.image", "")
	v.SetDefault("solver.docker.pull_policy", DefaultPullPolicy)
	v.SetDefault("solver.docker.graph_mount", DefaultGraphMount)
	v.SetDefault("solver.docker.cpuset_cpus", "")
	v.SetDefault("solver.docker.memory", "")

	v.SetDefault("analysis.enabled", true)
	v.SetDefault("analysis.scatter", false)

	v.SetDefault("upload.s3.enabled", false)
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.region", "")
	v.SetDefault("upload.s3.endpoint_url", "")
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
	v.SetDefault("upload.s3.prefix", "")
	v.SetDefault("upload.s3.concurrency", DefaultUploadConcurrency)

	v.SetDefault("index.database.driver", DefaultIndexDriver)
	v.SetDefault("index.database.sqlite.path", "")
	v.SetDefault("index.interval", DefaultIndexInterval)
	v.SetDefault("index.concurrency", DefaultIndexConcurrency)
	v.SetDefault("index.s3", false)

	v.SetDefault("api.listen", DefaultAPIListen)
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Global.ResultsDir == "" {
		c.Global.ResultsDir = DefaultResultsDir
	}

	if c.Experiment.Remap == "" {
		c.Experiment.Remap = DefaultRemap
	}

	if c.Experiment.Domain.Min == 0 && c.Experiment.Domain.Max == 0 {
		c.Experiment.Domain = DomainConfig{Min: DefaultDomainMin, Max: DefaultDomainMax}
	}

	if c.Solver.Backend == "" {
		c.Solver.Backend = DefaultBackend
	}

	if c.Solver.Timeout <= 0 {
		c.Solver.Timeout = DefaultSolverTimeout
	}

	if c.Solver.StderrLimit <= 0 {
		c.Solver.StderrLimit = DefaultStderrLimit
	}

	if c.Solver.StdoutSample <= 0 {
		c.Solver.StdoutSample = DefaultStdoutSample
	}

	if c.Solver.Docker.PullPolicy == "" {
		c.Solver.Docker.PullPolicy = DefaultPullPolicy
	}

	if c.Solver.Docker.GraphMount == "" {
		c.Solver.Docker.GraphMount = DefaultGraphMount
	}

	if len(c.Algorithms) == 0 {
		c.Algorithms = DefaultAlgorithms()
	}

	if c.Upload.S3.Concurrency <= 0 {
		c.Upload.S3.Concurrency = DefaultUploadConcurrency
	}

	if c.Index.Database.Driver == "" {
		c.Index.Database.Driver = DefaultIndexDriver
	}

	if c.Index.Database.Driver == "sqlite" && c.Index.Database.SQLite.Path == "" {
		c.Index.Database.SQLite.Path = filepath.Join(c.Global.ResultsDir, "index.db")
	}

	if c.Index.Interval <= 0 {
		c.Index.Interval = DefaultIndexInterval
	}

	if c.Index.Concurrency <= 0 {
		c.Index.Concurrency = DefaultIndexConcurrency
	}

	if c.API.Listen == "" {
		c.API.Listen = DefaultAPIListen
	}

	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerMinute <= 0 {
		c.API.RateLimit.RequestsPerMinute = 120
	}
}

// ValidateOpts scopes validation to what a command actually uses.
type ValidateOpts struct {
	// Algorithms limits graph and mode checks to the named algorithms.
	// Empty means all configured algorithms.
	Algorithms []string
	// RequireSolver demands a usable solver configuration.
	RequireSolver bool
}

var validBackends = map[string]bool{
	"single": true,
	"batch":  true,
	"docker": true,
}

var validRemaps = map[string]bool{
	"modulo":  true,
	"uniform": true,
}

var validPullPolicies = map[string]bool{
	"always":         true,
	"if-not-present": true,
	"never":          true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate(opts ValidateOpts) error {
	if c.Experiment.Pairs < 0 {
		return fmt.Errorf("experiment.pairs must not be negative, got %d", c.Experiment.Pairs)
	}

	if c.Experiment.Warmup < 0 {
		return fmt.Errorf("experiment.warmup must not be negative, got %d", c.Experiment.Warmup)
	}

	if c.Experiment.Domain.Min > c.Experiment.Domain.Max {
		return fmt.Errorf("experiment.domain: min %d exceeds max %d",
			c.Experiment.Domain.Min, c.Experiment.Domain.Max)
	}

	if !validRemaps[c.Experiment.Remap] {
		return fmt.Errorf("experiment.remap: unknown strategy %q", c.Experiment.Remap)
	}

	names := make(map[string]bool, len(c.Algorithms))
	outputs := make(map[string]string, len(c.Algorithms))

	for i, alg := range c.Algorithms {
		if alg.Name == "" {
			return fmt.Errorf("algorithm %d: name is required", i)
		}

		if names[alg.Name] {
			return fmt.Errorf("algorithm %d: duplicate name %q", i, alg.Name)
		}

		names[alg.Name] = true

		if alg.Mode == "" {
			return fmt.Errorf("algorithm %s: mode is required", alg.Name)
		}

		if alg.Graph != GraphOriginal && alg.Graph != GraphAugmented {
			return fmt.Errorf("algorithm %s: graph must be %q or %q, got %q",
				alg.Name, GraphOriginal, GraphAugmented, alg.Graph)
		}

		if alg.Output == "" || filepath.IsAbs(alg.Output) ||
			strings.HasPrefix(filepath.Clean(alg.Output), "..") {
			return fmt.Errorf("algorithm %s: output must be a relative path inside the run directory", alg.Name)
		}

		if other, ok := outputs[filepath.Clean(alg.Output)]; ok {
			return fmt.Errorf("algorithm %s: output %s already used by %s", alg.Name, alg.Output, other)
		}

		outputs[filepath.Clean(alg.Output)] = alg.Name
	}

	for _, name := range opts.Algorithms {
		if !names[name] {
			return fmt.Errorf("unknown algorithm %q", name)
		}
	}

	if opts.RequireSolver {
		if err := c.validateSolver(); err != nil {
			return err
		}

		for _, alg := range c.ActiveAlgorithms(opts.Algorithms) {
			if c.GraphPath(alg.Graph) == "" {
				return fmt.Errorf("algorithm %s: graphs.%s is required", alg.Name, alg.Graph)
			}
		}
	}

	if c.Upload.S3.Enabled && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when S3 upload is enabled")
	}

	if c.CPUFreq.Frequency != "" {
		if _, err := cpufreq.ParseFrequency(c.CPUFreq.Frequency); err != nil {
			return fmt.Errorf("cpufreq.frequency: %w", err)
		}
	}

	if _, err := c.CPUFreqCPUs(); err != nil {
		return fmt.Errorf("cpufreq.cpus: %w", err)
	}

	if c.Index.S3 && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when index.s3 is enabled")
	}

	switch c.Index.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("index.database.driver: unsupported driver %q", c.Index.Database.Driver)
	}

	if c.API.Auth.Enabled {
		if len(c.API.Auth.Users) == 0 {
			return fmt.Errorf("api.auth: at least one user is required when auth is enabled")
		}

		for i, u := range c.API.Auth.Users {
			if u.Username == "" || u.Password == "" {
				return fmt.Errorf("api.auth.users %d: username and password are required", i)
			}
		}
	}

	return nil
}

func (c *Config) validateSolver() error {
	if !validBackends[c.Solver.Backend] {
		return fmt.Errorf("solver.backend: unknown backend %q", c.Solver.Backend)
	}

	if len(c.Solver.Command) == 0 || c.Solver.Command[0] == "" {
		return fmt.Errorf("solver.command is required")
	}

	if c.Solver.Backend == "docker" {
		if c.Solver.Docker.Image == "" {
			return fmt.Errorf("solver.docker.image is required for the docker backend")
		}

		if !validPullPolicies[c.Solver.Docker.PullPolicy] {
			return fmt.Errorf("solver.docker.pull_policy: invalid policy %q", c.Solver.Docker.PullPolicy)
		}
	}

	return nil
}

// ActiveAlgorithms returns the configured algorithms filtered by names,
// keeping configuration order. Empty names selects all.
func (c *Config) ActiveAlgorithms(names []string) []AlgorithmConfig {
	if len(names) == 0 {
		return c.Algorithms
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	out := make([]AlgorithmConfig, 0, len(names))

	for _, alg := range c.Algorithms {
		if want[alg.Name] {
			out = append(out, alg)
		}
	}

	return out
}

// GraphPath returns the file configured for a graph role.
func (c *Config) GraphPath(role string) string {
	switch role {
	case GraphOriginal:
		return c.Graphs.Original
	case GraphAugmented:
		return c.Graphs.Augmented
	default:
		return ""
	}
}

// SolverEnv returns the solver environment as sorted KEY=VALUE entries.
func (c *Config) SolverEnv() []string {
	env := make([]string, 0, len(c.Solver.Environment))
	for k, v := range c.Solver.Environment {
		env = append(env, k+"="+v)
	}

	sort.Strings(env)

	return env
}

// Snapshot renders the resolved configuration as YAML with secrets
// redacted.
func (c *Config) Snapshot() ([]byte, error) {
	redacted := *c
	redacted.Upload.S3.SecretAccessKey = redact(redacted.Upload.S3.SecretAccessKey)
	redacted.Index.Database.Postgres.Password = redact(redacted.Index.Database.Postgres.Password)

	if len(c.API.Auth.Users) > 0 {
		redacted.API.Auth.Users = make([]BasicAuthUser, len(c.API.Auth.Users))
		for i, u := range c.API.Auth.Users {
			redacted.API.Auth.Users[i] = BasicAuthUser{Username: u.Username, Password: redact(u.Password)}
		}
	}

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return nil, fmt.Errorf("marshaling config snapshot: %w", err)
	}

	return data, nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}

	return "REDACTED"
}
