package model

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding the config file,
// e.g. MODERATOR_ANALYZER_TIMEOUT=90s
const EnvPrefix = "MODERATOR"

var envKeys = []string{
	"analyzer.executable",
	"analyzer.timeout",
	"analyzer.output_dir",
	"analyzer.strict_shape",
	"service.verbose",
	"service.log",
	"service.parallelism",
	"service.dir",
	"service.amqp.url",
	"service.repository.url",
}

// ApplyEnv overlays environment variables on top of a loaded config.
// Only variables which are set are applied.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if v.IsSet("analyzer.executable") {
		cfg.Analyzer.Executable = v.GetString("analyzer.executable")
	}
	if v.IsSet("analyzer.timeout") {
		d, err := ParseDuration(v.GetString("analyzer.timeout"))
		if err != nil {
			return fmt.Errorf("%s_ANALYZER_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Analyzer.Timeout = d
	}
	if v.IsSet("analyzer.output_dir") {
		cfg.Analyzer.OutputDir = v.GetString("analyzer.output_dir")
	}
	if v.IsSet("analyzer.strict_shape") {
		cfg.Analyzer.StrictShape = v.GetBool("analyzer.strict_shape")
	}
	if v.IsSet("service.verbose") {
		cfg.Service.Verbose = v.GetBool("service.verbose")
	}
	if v.IsSet("service.log") {
		cfg.Service.Log = v.GetString("service.log")
	}
	if v.IsSet("service.parallelism") {
		n := v.GetInt("service.parallelism")
		if n < 1 {
			return fmt.Errorf("%s_SERVICE_PARALLELISM: must be positive, got %d", EnvPrefix, n)
		}
		cfg.Service.Parallelism = n
	}
	if v.IsSet("service.dir") {
		cfg.Service.Dir = v.GetString("service.dir")
	}
	if v.IsSet("service.amqp.url") {
		if cfg.Service.AMQP == nil {
			cfg.Service.AMQP = &AMQP{Enabled: true}
		}
		cfg.Service.AMQP.URL = v.GetString("service.amqp.url")
	}
	if v.IsSet("service.repository.url") {
		if cfg.Service.Repository == nil {
			cfg.Service.Repository = &Repository{Enabled: true}
		}
		cfg.Service.Repository.URL = v.GetString("service.repository.url")
	}
	return nil
}
