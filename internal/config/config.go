// Package config loads the command-line configuration of a comparison run.
//
// Values come from, in increasing priority: built-in defaults, a YAML file
// and TIDYTUNE_* environment variables (TIDYTUNE_RUN_FOLDS overrides
// run.folds). Library packages never read this; the CLI converts it to a
// compare.Config and clean.Options.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/tidytune/clean"
	"github.com/YuminosukeSato/tidytune/compare"
	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/dataset"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/pkg/log"
	"github.com/YuminosukeSato/tidytune/recipe"
	"github.com/YuminosukeSato/tidytune/workflow"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TIDYTUNE"

type Config struct {
	Log    LogConfig     `mapstructure:"log" yaml:"log"`
	Data   DataConfig    `mapstructure:"data" yaml:"data"`
	Clean  clean.Options `mapstructure:"clean" yaml:"clean"`
	Run    RunConfig     `mapstructure:"run" yaml:"run"`
	Output OutputConfig  `mapstructure:"output" yaml:"output"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	File    string `mapstructure:"file" yaml:"file"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

type DataConfig struct {
	// Raw is the Arrow file read by clean; Cleaned is what tune reads.
	Raw     string `mapstructure:"raw" yaml:"raw"`
	Cleaned string `mapstructure:"cleaned" yaml:"cleaned"`
	// Rows and Seed drive the simulate command.
	Rows int    `mapstructure:"rows" yaml:"rows"`
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

type StepConfig struct {
	Kind    string   `mapstructure:"kind" yaml:"kind"`
	Columns []string `mapstructure:"columns" yaml:"columns,omitempty"`
	Lower   float64  `mapstructure:"lower" yaml:"lower,omitempty"`
	Upper   float64  `mapstructure:"upper" yaml:"upper,omitempty"`
}

type GridConfig struct {
	Type   string               `mapstructure:"type" yaml:"type,omitempty"`
	Levels int                  `mapstructure:"levels" yaml:"levels,omitempty"`
	Size   int                  `mapstructure:"size" yaml:"size,omitempty"`
	Values map[string][]float64 `mapstructure:"values" yaml:"values,omitempty"`
}

type FamilyConfig struct {
	Name string             `mapstructure:"name" yaml:"name"`
	Grid GridConfig         `mapstructure:"grid" yaml:"grid"`
	Args map[string]float64 `mapstructure:"args" yaml:"args,omitempty"`
}

// RunConfig mirrors compare.Config. Strata defaults to the outcome; "none"
// disables stratification.
type RunConfig struct {
	Outcome    string         `mapstructure:"outcome" yaml:"outcome"`
	Mode       string         `mapstructure:"mode" yaml:"mode"`
	Predictors []string       `mapstructure:"predictors" yaml:"predictors,omitempty"`
	Steps      []StepConfig   `mapstructure:"steps" yaml:"steps,omitempty"`
	Prop       float64        `mapstructure:"prop" yaml:"prop"`
	Strata     string         `mapstructure:"strata" yaml:"strata"`
	Folds      int            `mapstructure:"folds" yaml:"folds"`
	Repeats    int            `mapstructure:"repeats" yaml:"repeats"`
	Seed       uint64         `mapstructure:"seed" yaml:"seed"`
	Metrics    []string       `mapstructure:"metrics" yaml:"metrics,omitempty"`
	Workers    int            `mapstructure:"workers" yaml:"workers"`
	FitTimeout time.Duration  `mapstructure:"fit_timeout" yaml:"fit_timeout"`
	Families   []FamilyConfig `mapstructure:"families" yaml:"families"`
}

type OutputConfig struct {
	Dir        string `mapstructure:"dir" yaml:"dir"`
	Summaries  string `mapstructure:"summaries" yaml:"summaries"`
	Checkpoint string `mapstructure:"checkpoint" yaml:"checkpoint"`
	// Metrics is the Prometheus text file; empty disables it.
	Metrics string `mapstructure:"metrics" yaml:"metrics"`
	Plots   bool   `mapstructure:"plots" yaml:"plots"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.console", true)

	v.SetDefault("data.raw", "symptoms.arrow")
	v.SetDefault("data.cleaned", "symptoms_clean.arrow")
	v.SetDefault("data.rows", 730)
	v.SetDefault("data.seed", 2021)

	ordered := make([]map[string]any, 0, len(dataset.SeveritySymptoms))
	for _, name := range dataset.SeveritySymptoms {
		ordered = append(ordered, map[string]any{"column": name, "levels": dataset.Severity})
	}
	v.SetDefault("clean.required", []string{"BodyTemp", "Nausea"})
	v.SetDefault("clean.drop", append([]string{"Unique.Visit"}, dataset.RedundantSymptoms...))
	v.SetDefault("clean.ordered", ordered)
	v.SetDefault("clean.drop_redundant", false)
	v.SetDefault("clean.min_minority", clean.DefaultMinMinority)
	v.SetDefault("clean.protect", []string{})

	v.SetDefault("run.outcome", "BodyTemp")
	v.SetDefault("run.mode", model.Regression.String())
	v.SetDefault("run.predictors", []string{})
	v.SetDefault("run.steps", []map[string]any{
		{"kind": "dummy"}, {"kind": "ordinalscore"}, {"kind": "zv"}, {"kind": "normalize"},
	})
	v.SetDefault("run.prop", 0.7)
	v.SetDefault("run.strata", "")
	v.SetDefault("run.folds", 5)
	v.SetDefault("run.repeats", 5)
	v.SetDefault("run.seed", 123)
	v.SetDefault("run.metrics", []string{})
	v.SetDefault("run.workers", 0)
	v.SetDefault("run.fit_timeout", time.Duration(0))
	families := make([]map[string]any, 0, len(workflow.Families))
	for _, f := range workflow.Families {
		families = append(families, map[string]any{"name": f.String(), "grid": map[string]any{"levels": 3}})
	}
	v.SetDefault("run.families", families)

	v.SetDefault("output.dir", "out")
	v.SetDefault("output.summaries", "summaries.json")
	v.SetDefault("output.checkpoint", "results.gob")
	v.SetDefault("output.metrics", "metrics.prom")
	v.SetDefault("output.plots", true)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() (*Config, error) {
	return Load("")
}

// Load reads path over the defaults. An empty path loads defaults and
// environment overrides only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the effective configuration as YAML.
func (c *Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// Validate checks every field that does not depend on the data.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidationError("log.level", "must be debug, info, warn or error", c.Log.Level)
	}
	if c.Output.Dir == "" {
		return errors.NewValidationError("output.dir", "must be set", c.Output.Dir)
	}
	if c.Data.Rows < 0 {
		return errors.NewValidationError("data.rows", "must be non-negative", c.Data.Rows)
	}
	cc, err := c.Compare()
	if err != nil {
		return err
	}
	return cc.Validate()
}

func (r RunConfig) recipeSteps() ([]recipe.Step, error) {
	steps := make([]recipe.Step, 0, len(r.Steps))
	for _, sc := range r.Steps {
		kind, err := recipe.ParseStepKind(sc.Kind)
		if err != nil {
			return nil, err
		}
		steps = append(steps, recipe.Step{Kind: kind, Columns: sc.Columns, Lower: sc.Lower, Upper: sc.Upper})
	}
	return steps, nil
}

func strata(r RunConfig) string {
	switch r.Strata {
	case "":
		return r.Outcome
	case "none":
		return ""
	}
	return r.Strata
}

// Compare converts the run section into the library configuration.
func (c *Config) Compare() (compare.Config, error) {
	r := c.Run
	mode, err := model.ParseMode(r.Mode)
	if err != nil {
		return compare.Config{}, err
	}
	steps, err := r.recipeSteps()
	if err != nil {
		return compare.Config{}, err
	}
	cc := compare.Config{
		Outcome:    r.Outcome,
		Mode:       mode,
		Predictors: r.Predictors,
		Steps:      steps,
		Prop:       r.Prop,
		Strata:     strata(r),
		Folds:      r.Folds,
		Repeats:    r.Repeats,
		Seed:       r.Seed,
		Metrics:    r.Metrics,
		Workers:    r.Workers,
		FitTimeout: r.FitTimeout,
	}
	if r.FitTimeout < 0 {
		return compare.Config{}, errors.NewValidationError("run.fit_timeout", "must be non-negative", r.FitTimeout)
	}
	for _, fc := range r.Families {
		f, err := workflow.ParseFamily(fc.Name)
		if err != nil {
			return compare.Config{}, err
		}
		cc.Families = append(cc.Families, compare.FamilyConfig{
			Family: f,
			Grid: compare.GridSpec{
				Type:   fc.Grid.Type,
				Levels: fc.Grid.Levels,
				Size:   fc.Grid.Size,
				Values: fc.Grid.Values,
			},
			Args: fc.Args,
		})
	}
	return cc, nil
}

