package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader merges config.base.yaml, an optional config.<env>.yaml, and
// AGENTMESH_-prefixed environment variables, in that precedence order —
// the same layering the teacher's pkg/config/loader.go applies.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a Loader rooted at configPath.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AGENTMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{configPath: configPath, v: v}
}

// Load reads the base and environment-specific files, applies defaults for
// anything unset, and returns the resolved Config.
func (l *Loader) Load(environment string) (*Config, error) {
	cfg := Defaults()

	base := filepath.Join(l.configPath, "config.base.yaml")
	if err := l.mergeFile(base); err != nil {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}

	if environment != "" {
		envFile := filepath.Join(l.configPath, fmt.Sprintf("config.%s.yaml", environment))
		if err := l.mergeFile(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s config: %w", environment, err)
		}
	}

	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) mergeFile(path string) error {
	l.v.SetConfigFile(path)
	err := l.v.MergeInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}
