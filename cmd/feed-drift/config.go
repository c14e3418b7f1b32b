package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feed-drift/feed"
)

var (
	configPath   string
	debug        bool
	ledgerPath   string
	scaleFactor  float64
	syslogAddr   string
	serviceLabel string
	jobLabel     string
	outputDir    string
	archiveDir   string
	force        bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file path.")
	pf.BoolVar(&debug, "debug", false, "Enable debug logs.")
	pf.StringVar(&ledgerPath, "ledger", "", "SQLite run ledger path (overrides config.ledger). Empty disables the ledger.")
	pf.Float64Var(&scaleFactor, "scale", feed.DefaultScaleFactor, "Score scale factor, must be positive (overrides config.scale_factor).")
	pf.StringVar(&syslogAddr, "syslog-addr", "", "Syslog receiver address (tcp) for run notifications.")
	pf.StringVar(&serviceLabel, "service", "feed-drift", "Syslog structured-data service label.")
	pf.StringVar(&jobLabel, "job", "", "Syslog structured-data job label.")
	pf.StringVar(&outputDir, "output-dir", "", "Directory for generational snapshots (overrides config.output_dir).")
	pf.StringVar(&archiveDir, "archive-dir", "", "Move raw inputs here after a successful run (overrides config.archive_dir).")
	pf.BoolVar(&force, "force", false, "Materialize raw content even if the ledger has already seen it.")
}

// loadFileConfig reads --config (optional) and applies explicitly set flags
// on top of it.
func loadFileConfig(cmd *cobra.Command) (*feed.FileConfig, error) {
	cfg := &feed.FileConfig{}
	if strings.TrimSpace(configPath) != "" {
		c, err := feed.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("ledger") {
		cfg.Ledger = ledgerPath
	}
	if flags.Changed("scale") || cfg.ScaleFactor == 0 {
		cfg.ScaleFactor = scaleFactor
	}
	if flags.Changed("syslog-addr") {
		cfg.SyslogAddr = syslogAddr
	}
	if flags.Changed("service") || cfg.Service == "" {
		cfg.Service = serviceLabel
	}
	if flags.Changed("job") {
		cfg.Job = jobLabel
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("archive-dir") {
		cfg.ArchiveDir = archiveDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRunner(cmd *cobra.Command) (*feed.Runner, *feed.FileConfig, error) {
	cfg, err := loadFileConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	runner, err := feed.NewRunner(feed.RunnerConfig{
		LedgerPath:   cfg.Ledger,
		Fields:       cfg.Fields.Items,
		ScaleFactor:  cfg.ScaleFactor,
		OutputDir:    cfg.OutputDir,
		ArchiveDir:   cfg.ArchiveDir,
		Force:        force,
		Debug:        cfg.Debug,
		SyslogAddr:   cfg.SyslogAddr,
		ServiceLabel: cfg.Service,
		JobLabel:     cfg.Job,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init runner: %w", err)
	}
	return runner, cfg, nil
}
