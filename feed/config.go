package feed

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// QueryConfig points at the remote analytics query service.
type QueryConfig struct {
	BaseURL string `yaml:"base_url"`
	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv     string        `yaml:"token_env"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// WatchConfig configures the inbox watched by the watch command.
type WatchConfig struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

// FieldsConfig accepts either:
//  1. mapping form (preferred), in column order:
//     fields:
//     discussionid: discussionId
//     score: score
//  2. list form:
//     fields:
//     - raw: discussionid
//     normalized: discussionId
type FieldsConfig struct {
	Items FieldMap
}

func (f *FieldsConfig) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case yaml.MappingNode:
		items := make(FieldMap, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			raw := strings.TrimSpace(value.Content[i].Value)
			norm := strings.TrimSpace(value.Content[i+1].Value)
			if raw == "" || norm == "" {
				continue
			}
			items = append(items, FieldPair{Raw: raw, Normalized: norm})
		}
		f.Items = items
		return nil
	case yaml.SequenceNode:
		var items FieldMap
		if err := value.Decode(&items); err != nil {
			return err
		}
		f.Items = items
		return nil
	default:
		return fmt.Errorf("fields: expected mapping or list, got line %d", value.Line)
	}
}

type FileConfig struct {
	// ScaleFactor multiplies every raw score. Zero or absent means
	// DefaultScaleFactor; an explicit --scale 0 is rejected.
	ScaleFactor float64      `yaml:"scale_factor"`
	Fields      FieldsConfig `yaml:"fields"`

	// OutputDir receives generational snapshots written by fetch/watch.
	OutputDir string `yaml:"output_dir"`
	// ArchiveDir receives raw inputs after a successful run. Empty keeps them in place.
	ArchiveDir string `yaml:"archive_dir"`
	// Ledger is the SQLite run ledger path. Empty disables the ledger.
	Ledger string `yaml:"ledger"`

	Debug bool `yaml:"debug"`

	SyslogAddr string `yaml:"syslog_addr"`
	Service    string `yaml:"service"`
	Job        string `yaml:"job"`

	Query QueryConfig `yaml:"query"`
	Watch WatchConfig `yaml:"watch"`
}

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late in a run. It expects
// defaults and flag overrides to be applied already.
func (c *FileConfig) Validate() error {
	var errs []string
	if c.ScaleFactor <= 0 {
		errs = append(errs, fmt.Sprintf("scale_factor (%v) must be positive", c.ScaleFactor))
	}
	seen := map[string]bool{}
	for _, p := range c.Fields.Items {
		if seen[p.Normalized] {
			errs = append(errs, fmt.Sprintf("fields: duplicate normalized name %q", p.Normalized))
		}
		seen[p.Normalized] = true
	}
	if len(c.Fields.Items) > 0 && !seen[FieldDiscussionID] {
		errs = append(errs, fmt.Sprintf("fields: %q column is required", FieldDiscussionID))
	}
	if c.Query.PollInterval < 0 || c.Query.Timeout < 0 {
		errs = append(errs, "query: poll_interval and timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
