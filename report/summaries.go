// Package report writes the outputs of a comparison: summary records as
// JSON or YAML, terminal tables and curves, diagnostic plots and gob
// checkpoints of tuning results.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/tidytune/compare"
	"github.com/YuminosukeSato/tidytune/core/model"
	"github.com/YuminosukeSato/tidytune/pkg/errors"
	"github.com/YuminosukeSato/tidytune/tune"
)

func format(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	default:
		return "", errors.NewValidationError("path", "summaries must be .json, .yaml or .yml", path)
	}
}

// WriteSummaries writes sums to path; the extension selects JSON or YAML.
func WriteSummaries(path string, sums []compare.Summary) error {
	f, err := format(path)
	if err != nil {
		return err
	}
	var b []byte
	if f == "json" {
		b, err = json.MarshalIndent(sums, "", "  ")
	} else {
		b, err = yaml.Marshal(sums)
	}
	if err != nil {
		return errors.Wrapf(err, "encode summaries as %s", f)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// ReadSummaries reads records written by WriteSummaries.
func ReadSummaries(path string) ([]compare.Summary, error) {
	f, err := format(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var sums []compare.Summary
	if f == "json" {
		err = json.Unmarshal(b, &sums)
	} else {
		err = yaml.Unmarshal(b, &sums)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return sums, nil
}

// Checkpoint is the gob payload of SaveResults: the tuning results of every
// family plus the flattened summaries.
type Checkpoint struct {
	Results   []*tune.Results
	Summaries []compare.Summary
}

// NewCheckpoint collects the tuning results of c.
func NewCheckpoint(c *compare.Comparison) *Checkpoint {
	cp := &Checkpoint{Summaries: c.Summaries()}
	for _, fr := range c.Families {
		if fr.Tuning != nil {
			cp.Results = append(cp.Results, fr.Tuning)
		}
	}
	return cp
}

// SaveResults writes a checkpoint to path so reports can be regenerated
// without re-running the search.
func SaveResults(path string, cp *Checkpoint) error {
	return model.Save(cp, path)
}

// LoadResults reads a checkpoint written by SaveResults.
func LoadResults(path string) (*Checkpoint, error) {
	var cp Checkpoint
	if err := model.Load(&cp, path); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Find returns the tuning results of the named family.
func (cp *Checkpoint) Find(family string) (*tune.Results, bool) {
	for _, r := range cp.Results {
		if r.Family == family {
			return r, true
		}
	}
	return nil, false
}
