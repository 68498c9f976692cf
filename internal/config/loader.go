package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Load reads the configuration from path (JSON or YAML, sniffed from its
// extension) and overlays any matching environment variables prefixed
// PIPELINE_ (e.g. PIPELINE_CTRL_PORT overrides ctrl_port), then validates
// it. A config error here is fatal at startup per spec §6/§7.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "config: decoding %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("workers", 4)
	v.SetDefault("stack_size_mib", 8)
	v.SetDefault("ctrl_host", "127.0.0.1")
	v.SetDefault("ctrl_port", 9050)
}
