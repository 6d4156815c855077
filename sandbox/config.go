package sandbox

import (
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config carries the externally tunable limits of a sandbox.
type Config struct {
	Sandbox SandboxDetails `toml:"sandbox"`
}

type SandboxDetails struct {
	// TimeoutSeconds bounds one run's wall time. Zero means default.
	TimeoutSeconds float64 `toml:"timeout,omitempty"`
	// MaxSteps bounds one run's instruction count. Zero means default.
	MaxSteps int `toml:"max_steps,omitempty"`
	// AllowedModules replaces the stock allow-list when non-empty.
	AllowedModules []string `toml:"allowed_modules,omitempty"`
}

const (
	DefaultTimeout  = 1500 * time.Millisecond
	DefaultMaxSteps = 200_000
)

func (d SandboxDetails) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(d.TimeoutSeconds * float64(time.Second))
}

func parseConfig(f io.Reader) (*Config, error) {
	var out Config
	_, err := toml.NewDecoder(f).Decode(&out)
	return &out, err
}

func LoadConfigFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseConfig(f)
}

// Options applies the config to an Executor.
func (c *Config) Options() []Option {
	opts := []Option{WithTimeout(c.Sandbox.Timeout())}
	if c.Sandbox.MaxSteps > 0 {
		opts = append(opts, WithMaxSteps(c.Sandbox.MaxSteps))
	}
	if len(c.Sandbox.AllowedModules) > 0 {
		opts = append(opts, WithAllowedModules(c.Sandbox.AllowedModules))
	}
	return opts
}
