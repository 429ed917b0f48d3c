package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Corpus     Corpus     `yaml:"corpus"`
	Output     Output     `yaml:"output"`
	Tournament Tournament `yaml:"tournament"`
	Selector   Selector   `yaml:"selector"`
	Judge      Judge      `yaml:"judge"`
}

type Corpus struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

type Output struct {
	Dir string `yaml:"dir"`
}

type Tournament struct {
	MatchupSize int `yaml:"matchup_size"`
	// Budget 0 means "computed at run start": 10x the corpus size, at
	// least 50.
	Budget          int `yaml:"budget"`
	Workers         int `yaml:"workers"`
	SnapshotCadence int `yaml:"snapshot_cadence"`
}

type Selector struct {
	Strategy         string  `yaml:"strategy"`
	Temperature      float64 `yaml:"temperature"`
	DeltaMu          float64 `yaml:"delta_mu"`
	PoolSize         int     `yaml:"pool_size"`
	MaxEvalsPerCrash int     `yaml:"max_evals_per_crash"`
}

type Judge struct {
	Type           string   `yaml:"type"`
	Noise          float64  `yaml:"noise"`
	GroundTruth    string   `yaml:"ground_truth"`
	TimeoutSeconds int      `yaml:"timeout_s"`
	Command        []string `yaml:"command"`
	Image          string   `yaml:"image"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Corpus.Dir == "" {
		return fmt.Errorf("corpus dir is required")
	}
	if cfg.Corpus.Pattern == "" {
		cfg.Corpus.Pattern = "*"
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "crashrank-out"
	}

	t := &cfg.Tournament
	if t.MatchupSize == 0 {
		t.MatchupSize = 4
	}
	if t.MatchupSize < 2 || t.MatchupSize > 7 {
		return fmt.Errorf("tournament matchup_size must be between 2 and 7, got %d", t.MatchupSize)
	}
	if t.Budget < 0 {
		return fmt.Errorf("tournament budget cannot be negative")
	}
	if t.Workers == 0 {
		t.Workers = 4
	}
	if t.Workers < 1 {
		return fmt.Errorf("tournament workers must be at least 1")
	}
	if t.SnapshotCadence == 0 {
		t.SnapshotCadence = 10
	}
	if t.SnapshotCadence < 1 {
		return fmt.Errorf("tournament snapshot_cadence must be at least 1")
	}

	s := &cfg.Selector
	if s.Strategy == "" {
		s.Strategy = "uncertainty"
	}
	switch s.Strategy {
	case "uncertainty", "random", "least_runs":
	default:
		return fmt.Errorf("unknown selector strategy %q", s.Strategy)
	}
	if s.Temperature < 0 {
		return fmt.Errorf("selector temperature cannot be negative")
	}
	if s.DeltaMu == 0 {
		s.DeltaMu = 1.0
	}
	if s.MaxEvalsPerCrash < 0 {
		return fmt.Errorf("selector max_evals_per_crash cannot be negative")
	}

	j := &cfg.Judge
	if j.Type == "" {
		j.Type = "dummy"
	}
	switch j.Type {
	case "dummy", "dummy_random", "simulated", "command", "container":
	default:
		return fmt.Errorf("unknown judge type %q", j.Type)
	}
	if j.Type == "simulated" && j.GroundTruth == "" {
		return fmt.Errorf("simulated judge requires ground_truth")
	}
	if j.Type == "command" && len(j.Command) == 0 {
		return fmt.Errorf("command judge requires a command")
	}
	if j.Type == "container" && j.Image == "" {
		return fmt.Errorf("container judge requires an image")
	}
	if j.Noise < 0 || j.Noise > 1 {
		return fmt.Errorf("judge noise must be between 0 and 1, got %g", j.Noise)
	}
	if j.TimeoutSeconds == 0 {
		j.TimeoutSeconds = 300
	}
	if j.TimeoutSeconds < 0 {
		return fmt.Errorf("judge timeout_s cannot be negative")
	}
	return nil
}

// ResolveBudget fills the computed default when the config leaves budget
// unset: ten evaluations per crash, floor of 50.
func (t *Tournament) ResolveBudget(corpusSize int) int {
	if t.Budget > 0 {
		return t.Budget
	}
	budget := corpusSize * 10
	if budget < 50 {
		budget = 50
	}
	return budget
}
