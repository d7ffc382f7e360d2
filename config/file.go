// Package config loads a taskengine.Config from a YAML file, grounded
// on the loadConfig/yaml.Unmarshal pattern used throughout the
// ChuLiYu-raft-recovery example's CLI (internal/cli/cli.go,
// cmd/demo/main.go).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	taskengine "github.com/relaywork/engine"
)

// File is the on-disk shape of an Engine configuration. Zero-valued
// fields are left at taskengine's defaults; only fields explicitly
// present in the YAML document override them.
type File struct {
	Workers struct {
		Fixed     *uint `yaml:"fixed"`
		AutoScale *bool `yaml:"auto_scale"`
		Min       uint  `yaml:"min"`
		Max       uint  `yaml:"max"`
	} `yaml:"workers"`

	Queue struct {
		CapacityTotal uint       `yaml:"capacity_total"`
		Split         [4]float64 `yaml:"split"` // [critical, high, normal, low]
	} `yaml:"queue"`

	Retention struct {
		TerminalMax uint `yaml:"terminal_max"`
	} `yaml:"retention"`

	Retry struct {
		BaseBackoff string `yaml:"base_backoff"`
		MaxBackoff  string `yaml:"max_backoff"`
		OnTimeout   bool   `yaml:"on_timeout"`
	} `yaml:"retry"`

	Scheduler struct {
		TickMax string `yaml:"tick_max"`
	} `yaml:"scheduler"`

	DefaultTimeout  string `yaml:"default_timeout"`
	StartImmediately bool  `yaml:"start_immediately"`
}

// Load reads and parses the YAML file at path, returning Options ready
// to pass to taskengine.New.
func Load(path string) ([]taskengine.Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taskengine/config: failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("taskengine/config: failed to parse config YAML: %w", err)
	}

	return f.toOptions()
}

func (f File) toOptions() ([]taskengine.Option, error) {
	var opts []taskengine.Option

	switch {
	case f.Workers.AutoScale != nil && *f.Workers.AutoScale:
		opts = append(opts, taskengine.WithAutoScale(f.Workers.Min, f.Workers.Max))
	case f.Workers.Fixed != nil:
		opts = append(opts, taskengine.WithFixedWorkers(*f.Workers.Fixed))
	}

	if f.Queue.CapacityTotal > 0 {
		opts = append(opts, taskengine.WithQueueCapacityTotal(f.Queue.CapacityTotal))
	}
	if f.Queue.Split != ([4]float64{}) {
		opts = append(opts, taskengine.WithQueueSplit(taskengine.QueueSplit(f.Queue.Split)))
	}

	if f.Retention.TerminalMax > 0 {
		opts = append(opts, taskengine.WithRetentionMax(f.Retention.TerminalMax))
	}

	if f.Retry.BaseBackoff != "" || f.Retry.MaxBackoff != "" {
		base, err := parseDurationOrZero(f.Retry.BaseBackoff)
		if err != nil {
			return nil, fmt.Errorf("taskengine/config: retry.base_backoff: %w", err)
		}
		max, err := parseDurationOrZero(f.Retry.MaxBackoff)
		if err != nil {
			return nil, fmt.Errorf("taskengine/config: retry.max_backoff: %w", err)
		}
		opts = append(opts, func(c *taskengine.Config) {
			if f.Retry.BaseBackoff != "" {
				c.RetryBaseBackoff = base
			}
			if f.Retry.MaxBackoff != "" {
				c.RetryMaxBackoff = max
			}
		})
	}
	if f.Retry.OnTimeout {
		opts = append(opts, taskengine.WithRetryOnTimeout())
	}

	if f.Scheduler.TickMax != "" {
		d, err := time.ParseDuration(f.Scheduler.TickMax)
		if err != nil {
			return nil, fmt.Errorf("taskengine/config: scheduler.tick_max: %w", err)
		}
		opts = append(opts, taskengine.WithSchedulerTick(d))
	}

	if f.DefaultTimeout != "" {
		d, err := time.ParseDuration(f.DefaultTimeout)
		if err != nil {
			return nil, fmt.Errorf("taskengine/config: default_timeout: %w", err)
		}
		opts = append(opts, taskengine.WithDefaultTimeout(d))
	}

	if f.StartImmediately {
		opts = append(opts, taskengine.WithStartImmediately())
	}

	return opts, nil
}

func parseDurationOrZero(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
